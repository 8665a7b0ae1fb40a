package probe

import (
	"context"
	"time"

	"popos/internal/model"
)

type State string

const (
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateFiltered   State = "filtered"
	StateNoResponse State = "no_response"
)

type Outcome struct {
	State   State         `json:"state"`
	Latency time.Duration `json:"latency"`
}

// Determined reports whether the probe yielded port-state information.
func (o Outcome) Determined() bool {
	return o.State == StateOpen || o.State == StateClosed
}

// Prober transmits one probe shaped by a descriptor. Implementations never
// fail on unreachable hosts; an unanswerable probe is StateNoResponse.
type Prober interface {
	Send(ctx context.Context, d model.Descriptor, addr string, port int) Outcome
}
