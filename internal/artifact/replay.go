package artifact

import (
	"context"
	"fmt"

	"popos/internal/model"
	"popos/internal/probe"
)

// Replay transmits each descriptor exactly once against the target, in input
// order, with no detector feedback and no evolution. The i-th descriptor goes
// to the i-th target port, cycling when the plan is longer than the port list;
// replaying against a different target than the plan was evolved for is
// expected use.
func Replay(ctx context.Context, descriptors []model.Descriptor, target model.Target, prober probe.Prober) ([]probe.Outcome, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("no descriptors to replay")
	}
	if target.Addr == "" || len(target.Ports) == 0 {
		return nil, fmt.Errorf("replay target requires an address and at least one port")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}

	outcomes := make([]probe.Outcome, 0, len(descriptors))
	for i, d := range descriptors {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		port := target.Ports[i%len(target.Ports)]
		outcomes = append(outcomes, prober.Send(ctx, d, target.Addr, port))
	}
	return outcomes, nil
}

// SummarizeOutcomes counts replay results by state.
func SummarizeOutcomes(outcomes []probe.Outcome) map[probe.State]int {
	summary := map[probe.State]int{}
	for _, o := range outcomes {
		summary[o.State]++
	}
	return summary
}
