package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"popos/internal/model"
	"popos/internal/probe"
)

type replayProber struct {
	sent []struct {
		d    model.Descriptor
		addr string
		port int
	}
	state probe.State
}

func (p *replayProber) Send(_ context.Context, d model.Descriptor, addr string, port int) probe.Outcome {
	p.sent = append(p.sent, struct {
		d    model.Descriptor
		addr string
		port int
	}{d, addr, port})
	state := p.state
	if state == "" {
		state = probe.StateOpen
	}
	return probe.Outcome{State: state, Latency: time.Millisecond}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	bridge := &Bridge{Dir: t.TempDir(), RunID: "run-1", PlanLength: 3}
	ind := model.Individual{
		Descriptor: model.Descriptor{TTL: 200, PayloadSize: 512, Flags: "FA", WindowSize: 4096, Delay: 0.75},
		Generation: 7,
	}

	path, err := bridge.Persist(ind, 7)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if filepath.Base(path) != "run-1_gen7.scan" {
		t.Fatalf("unexpected artifact name %s", filepath.Base(path))
	}

	descriptors, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(descriptors) != 3 {
		t.Fatalf("loaded %d descriptors, want 3", len(descriptors))
	}
	for i, d := range descriptors {
		if d != ind.Descriptor {
			t.Fatalf("descriptor %d = %+v, want %+v", i, d, ind.Descriptor)
		}
	}
}

func TestPersistEmptyFlagSetRoundTrips(t *testing.T) {
	bridge := &Bridge{Dir: t.TempDir(), RunID: "run-1"}
	ind := model.Individual{Descriptor: model.Descriptor{TTL: 64, PayloadSize: 0, Flags: "", WindowSize: 1024, Delay: 0}}

	path, err := bridge.Persist(ind, 0)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	descriptors, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if descriptors[0].Flags != "" {
		t.Fatalf("flags = %q, want empty flag set", descriptors[0].Flags)
	}
}

func TestPersistOverwritesSameGeneration(t *testing.T) {
	bridge := &Bridge{Dir: t.TempDir(), RunID: "run-1"}

	first, err := bridge.Persist(model.Individual{Descriptor: model.Descriptor{TTL: 10, Flags: "S"}}, 2)
	if err != nil {
		t.Fatalf("first Persist: %v", err)
	}
	second, err := bridge.Persist(model.Individual{Descriptor: model.Descriptor{TTL: 20, Flags: "S"}}, 2)
	if err != nil {
		t.Fatalf("second Persist: %v", err)
	}
	if first != second {
		t.Fatalf("same generation wrote two paths: %s, %s", first, second)
	}

	descriptors, err := Load(second)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if descriptors[0].TTL != 20 {
		t.Fatalf("ttl = %d, want the overwrite to win", descriptors[0].TTL)
	}
}

func TestPersistLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	bridge := &Bridge{Dir: dir, RunID: "run-1"}
	if _, err := bridge.Persist(model.Individual{Descriptor: model.Descriptor{TTL: 10, Flags: "S"}}, 0); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".scan-") {
			t.Fatalf("temp file %s left behind", entry.Name())
		}
	}
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.scan")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestLoadRejectsMalformedArtifacts(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"wrong format name", "other-scan v1 run=r gen=0\nttl=64 payload=0 flags=S window=0 delay=0\n"},
		{"unsupported version", "popos-scan v2 run=r gen=0\nttl=64 payload=0 flags=S window=0 delay=0\n"},
		{"missing version prefix", "popos-scan 1 run=r gen=0\nttl=64 payload=0 flags=S window=0 delay=0\n"},
		{"no descriptors", "popos-scan v1 run=r gen=0\n"},
		{"garbage line", "popos-scan v1 run=r gen=0\nnot a descriptor\n"},
		{"missing field", "popos-scan v1 run=r gen=0\nttl=64 payload=0 window=0\n"},
		{"duplicate field", "popos-scan v1 run=r gen=0\nttl=64 ttl=65 payload=0 flags=S window=0 delay=0\n"},
		{"unknown field", "popos-scan v1 run=r gen=0\nttl=64 payload=0 flags=S window=0 delay=0 mtu=9000\n"},
		{"non-numeric ttl", "popos-scan v1 run=r gen=0\nttl=low payload=0 flags=S window=0 delay=0\n"},
		{"ttl out of domain", "popos-scan v1 run=r gen=0\nttl=0 payload=0 flags=S window=0 delay=0\n"},
		{"ttl above 255", "popos-scan v1 run=r gen=0\nttl=999 payload=0 flags=S window=0 delay=0\n"},
		{"payload out of domain", "popos-scan v1 run=r gen=0\nttl=64 payload=70000 flags=S window=0 delay=0\n"},
		{"window out of domain", "popos-scan v1 run=r gen=0\nttl=64 payload=0 flags=S window=70000 delay=0\n"},
		{"negative delay", "popos-scan v1 run=r gen=0\nttl=64 payload=0 flags=S window=0 delay=-1\n"},
		{"unknown flag combination", "popos-scan v1 run=r gen=0\nttl=64 payload=0 flags=XY window=0 delay=0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeArtifact(t, tc.content)
			if _, err := Load(path); !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.scan"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatal("a missing file is not a malformed artifact")
	}
}

func TestReplaySendsInOrder(t *testing.T) {
	descriptors := []model.Descriptor{
		{TTL: 10, PayloadSize: 1, Flags: "S", WindowSize: 100, Delay: 0},
		{TTL: 20, PayloadSize: 2, Flags: "A", WindowSize: 200, Delay: 0},
		{TTL: 30, PayloadSize: 3, Flags: "FA", WindowSize: 300, Delay: 0},
	}
	prober := &replayProber{}
	target := model.Target{Addr: "192.0.2.20", Ports: []int{80, 443}}

	outcomes, err := Replay(context.Background(), descriptors, target, prober)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	for _, o := range outcomes {
		if o.State != probe.StateOpen {
			t.Fatalf("outcome state = %s, want open", o.State)
		}
	}

	wantPorts := []int{80, 443, 80}
	for i, sent := range prober.sent {
		if sent.d != descriptors[i] {
			t.Fatalf("probe %d sent %+v, want %+v (input order)", i, sent.d, descriptors[i])
		}
		if sent.port != wantPorts[i] {
			t.Fatalf("probe %d went to port %d, want %d", i, sent.port, wantPorts[i])
		}
		if sent.addr != target.Addr {
			t.Fatalf("probe %d went to %s, want %s", i, sent.addr, target.Addr)
		}
	}
}

func TestReplayMalformedArtifactSendsNothing(t *testing.T) {
	path := writeArtifact(t, "popos-scan v1 run=r gen=0\nttl=0 payload=0 flags=S window=0 delay=0\n")
	prober := &replayProber{}

	descriptors, err := Load(path)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if _, err := Replay(context.Background(), descriptors, model.Target{Addr: "192.0.2.20", Ports: []int{80}}, prober); err == nil {
		t.Fatal("expected error for empty descriptor list")
	}
	if len(prober.sent) != 0 {
		t.Fatalf("%d probes transmitted for a rejected artifact", len(prober.sent))
	}
}

func TestReplayValidation(t *testing.T) {
	d := []model.Descriptor{{TTL: 64, Flags: "S"}}
	if _, err := Replay(context.Background(), d, model.Target{Ports: []int{80}}, &replayProber{}); err == nil {
		t.Fatal("expected error for missing address")
	}
	if _, err := Replay(context.Background(), d, model.Target{Addr: "192.0.2.20"}, &replayProber{}); err == nil {
		t.Fatal("expected error for missing ports")
	}
	if _, err := Replay(context.Background(), d, model.Target{Addr: "192.0.2.20", Ports: []int{80}}, nil); err == nil {
		t.Fatal("expected error for nil prober")
	}
}

func TestReplayCancellationReturnsPartialOutcomes(t *testing.T) {
	descriptors := []model.Descriptor{
		{TTL: 10, Flags: "S"}, {TTL: 20, Flags: "S"}, {TTL: 30, Flags: "S"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := Replay(ctx, descriptors, model.Target{Addr: "192.0.2.20", Ports: []int{80}}, &replayProber{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("got %d outcomes after pre-cancelled context", len(outcomes))
	}
}

func TestSummarizeOutcomes(t *testing.T) {
	outcomes := []probe.Outcome{
		{State: probe.StateOpen}, {State: probe.StateOpen},
		{State: probe.StateClosed}, {State: probe.StateNoResponse},
	}
	summary := SummarizeOutcomes(outcomes)
	if summary[probe.StateOpen] != 2 || summary[probe.StateClosed] != 1 || summary[probe.StateNoResponse] != 1 {
		t.Fatalf("unexpected summary: %v", summary)
	}
}
