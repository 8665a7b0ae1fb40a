// Package artifact persists evolved probe plans and reconstructs them for
// replay. Files are plain text, one descriptor per line under a versioned
// header, written atomically and never rewritten by the engine afterwards.
package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"popos/internal/model"
)

// ErrMalformed reports an artifact that cannot be trusted for replay:
// truncated, unrecognized version, or gene values outside their domain.
var ErrMalformed = errors.New("malformed scan artifact")

const (
	formatName    = "popos-scan"
	formatVersion = 1
)

// Bridge writes one plan file per (run, generation), replicating the best
// individual's descriptor once per planned probe. Re-persisting the same
// generation overwrites the same file.
type Bridge struct {
	Dir        string
	RunID      string
	PlanLength int
}

func (b *Bridge) Persist(ind model.Individual, generation int) (string, error) {
	if b.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	planLength := b.PlanLength
	if planLength <= 0 {
		planLength = 1
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(b.Dir, ".scan-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "%s v%d run=%s gen=%d\n", formatName, formatVersion, b.RunID, generation)
	for i := 0; i < planLength; i++ {
		writeDescriptor(w, ind.Descriptor)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(b.Dir, fmt.Sprintf("%s_gen%d.scan", b.RunID, generation))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

func writeDescriptor(w *bufio.Writer, d model.Descriptor) {
	fmt.Fprintf(w, "ttl=%d payload=%d flags=%s window=%d delay=%s\n",
		d.TTL, d.PayloadSize, d.Flags, d.WindowSize,
		strconv.FormatFloat(d.Delay, 'f', -1, 64))
}

// Load parses a persisted plan. It rejects rather than coerces: any field
// outside its protocol domain, an unknown header, or a file with no
// descriptors fails with ErrMalformed.
func Load(path string) ([]model.Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}
	if err := parseHeader(scanner.Text()); err != nil {
		return nil, err
	}

	var descriptors []model.Descriptor
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		d, err := parseDescriptor(text)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		descriptors = append(descriptors, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: no descriptors", ErrMalformed)
	}
	return descriptors, nil
}

func parseHeader(header string) error {
	fields := strings.Fields(header)
	if len(fields) < 2 || fields[0] != formatName {
		return fmt.Errorf("%w: unrecognized header %q", ErrMalformed, header)
	}
	version, err := strconv.Atoi(strings.TrimPrefix(fields[1], "v"))
	if err != nil || !strings.HasPrefix(fields[1], "v") {
		return fmt.Errorf("%w: unrecognized version %q", ErrMalformed, fields[1])
	}
	if version != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, version)
	}
	return nil
}

func parseDescriptor(text string) (model.Descriptor, error) {
	fields := strings.Fields(text)
	var d model.Descriptor
	seen := map[string]bool{}

	// `flags=` carries an empty flag set and strings.Fields drops it, so the
	// field count may be one short of the key count.
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return model.Descriptor{}, fmt.Errorf("field %q is not key=value", field)
		}
		if seen[key] {
			return model.Descriptor{}, fmt.Errorf("duplicate field %q", key)
		}
		seen[key] = true

		var err error
		switch key {
		case "ttl":
			d.TTL, err = strconv.Atoi(value)
		case "payload":
			d.PayloadSize, err = strconv.Atoi(value)
		case "flags":
			d.Flags = value
			seen["flags"] = true
		case "window":
			d.WindowSize, err = strconv.Atoi(value)
		case "delay":
			d.Delay, err = strconv.ParseFloat(value, 64)
		default:
			return model.Descriptor{}, fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return model.Descriptor{}, fmt.Errorf("field %q: %v", key, err)
		}
	}
	for _, key := range []string{"ttl", "payload", "window", "delay"} {
		if !seen[key] {
			return model.Descriptor{}, fmt.Errorf("missing field %q", key)
		}
	}
	if err := checkDomain(d); err != nil {
		return model.Descriptor{}, err
	}
	return d, nil
}

func checkDomain(d model.Descriptor) error {
	if d.TTL < 1 || d.TTL > 255 {
		return fmt.Errorf("ttl %d outside [1,255]", d.TTL)
	}
	if d.PayloadSize < 0 || d.PayloadSize > 65535 {
		return fmt.Errorf("payload %d outside [0,65535]", d.PayloadSize)
	}
	if d.WindowSize < 0 || d.WindowSize > 65535 {
		return fmt.Errorf("window %d outside [0,65535]", d.WindowSize)
	}
	if d.Delay < 0 {
		return fmt.Errorf("delay %g is negative", d.Delay)
	}
	for _, f := range model.FlagSets {
		if d.Flags == f {
			return nil
		}
	}
	return fmt.Errorf("unknown flag combination %q", d.Flags)
}
