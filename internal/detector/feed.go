package detector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrUnavailable reports that the alert stream could not be read. Callers
// treat it as "alert count unknown", never as a fatal condition.
var ErrUnavailable = errors.New("detector feed unavailable")

// Checkpoint is an opaque position in the detector's alert stream. It only
// ever advances; two runs never share one.
type Checkpoint int64

// Feed exposes the detector's append-only alert log as a cursor read: alerts
// logged since the checkpoint, plus the new checkpoint.
type Feed interface {
	ReadSince(ctx context.Context, cp Checkpoint) (count int, next Checkpoint, err error)
}

// FileFeed tails a detector alert file, one alert per line, tracking position
// as a byte offset so repeated reads never double-count.
type FileFeed struct {
	Path string
}

func (f *FileFeed) ReadSince(ctx context.Context, cp Checkpoint) (int, Checkpoint, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return 0, cp, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, cp, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// A rotated or truncated file leaves the cursor past EOF. The checkpoint
	// never rewinds; alerts from before the rotation are already accounted.
	if int64(cp) >= info.Size() {
		return 0, cp, nil
	}
	if _, err := file.Seek(int64(cp), io.SeekStart); err != nil {
		return 0, cp, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	reader := bufio.NewReader(file)
	count := 0
	offset := int64(cp)
	for {
		if err := ctx.Err(); err != nil {
			return 0, cp, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// A trailing partial line belongs to the next read; the detector
			// may still be writing it.
			break
		}
		offset += int64(len(line))
		count++
	}
	return count, Checkpoint(offset), nil
}
