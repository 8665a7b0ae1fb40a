package fitness

import (
	"context"
	"fmt"
	"time"

	"popos/internal/detector"
	"popos/internal/model"
	"popos/internal/probe"
)

// Detail is the observable evidence behind one fitness score.
type Detail struct {
	Probes      int             `json:"probes"`
	Successes   int             `json:"successes"`
	Alerts      int             `json:"alerts"`
	AlertsKnown bool            `json:"alerts_known"`
	Outcomes    []probe.Outcome `json:"outcomes"`
}

// Scorer evaluates one individual against the live target and detector pair.
// The returned checkpoint only ever advances.
type Scorer interface {
	Evaluate(ctx context.Context, ind model.Individual, cp detector.Checkpoint) (float64, Detail, detector.Checkpoint, error)
}

// Shaping biases scores toward morphologies the detector literature associates
// with quieter traffic. All weights default to zero; they depend only on the
// descriptor, never on alerts, so alert ordering between otherwise-identical
// individuals is preserved.
type Shaping struct {
	HighTTLBonus     float64 `json:"high_ttl_bonus" yaml:"high_ttl_bonus"`
	PayloadBonus     float64 `json:"payload_bonus" yaml:"payload_bonus"`
	LowWindowBonus   float64 `json:"low_window_bonus" yaml:"low_window_bonus"`
	DelayBonus       float64 `json:"delay_bonus" yaml:"delay_bonus"`
	TTLThreshold     int     `json:"ttl_threshold" yaml:"ttl_threshold"`
	PayloadThreshold int     `json:"payload_threshold" yaml:"payload_threshold"`
	WindowThreshold  int     `json:"window_threshold" yaml:"window_threshold"`
	DelayThreshold   float64 `json:"delay_threshold" yaml:"delay_threshold"`
}

// Weights is the fitness policy. AlertPenalty must exceed SuccessReward so a
// single alert always outweighs a fully successful scan.
type Weights struct {
	SuccessReward      float64 `json:"success_reward" yaml:"success_reward"`
	AlertPenalty       float64 `json:"alert_penalty" yaml:"alert_penalty"`
	UnknownFeedPenalty float64 `json:"unknown_feed_penalty" yaml:"unknown_feed_penalty"`
	Shaping            Shaping `json:"shaping" yaml:"shaping"`
}

func DefaultWeights() Weights {
	return Weights{
		SuccessReward: 1.0,
		AlertPenalty:  2.0,
	}
}

func (w Weights) Validate() error {
	if w.SuccessReward <= 0 {
		return fmt.Errorf("success reward must be > 0")
	}
	if w.AlertPenalty <= w.SuccessReward {
		return fmt.Errorf("alert penalty (%g) must exceed success reward (%g)", w.AlertPenalty, w.SuccessReward)
	}
	if w.UnknownFeedPenalty < 0 {
		return fmt.Errorf("unknown feed penalty must be >= 0")
	}
	s := w.Shaping
	if s.HighTTLBonus < 0 || s.PayloadBonus < 0 || s.LowWindowBonus < 0 || s.DelayBonus < 0 {
		return fmt.Errorf("shaping bonuses must be >= 0")
	}
	return nil
}

type Config struct {
	Prober        probe.Prober
	Feed          detector.Feed
	Target        model.Target
	ProbesPerEval int
	SettleWindow  time.Duration
	FeedTimeout   time.Duration
	Weights       Weights
	Logf          func(format string, args ...any)
}

// Evaluator scores individuals by probing the target and then charging alerts
// attributed to that traffic. One evaluator owns one target/detector pair for
// a run's lifetime; evaluations are strictly sequential.
type Evaluator struct {
	cfg        Config
	portCursor int
}

func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.Prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if cfg.Feed == nil {
		return nil, fmt.Errorf("detector feed is required")
	}
	if cfg.Target.Addr == "" {
		return nil, fmt.Errorf("target address is required")
	}
	if len(cfg.Target.Ports) == 0 {
		return nil, fmt.Errorf("target ports are required")
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("fitness weights: %w", err)
	}
	if cfg.ProbesPerEval <= 0 {
		cfg.ProbesPerEval = 1
	}
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = 2 * time.Second
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 3 * time.Second
	}
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}
	return &Evaluator{cfg: cfg}, nil
}

// Evaluate transmits the individual's probe batch, waits the settle window,
// reads newly attributed alerts, and scores the result. Transmission failures
// surface as failed probes, never as errors; only cancellation aborts.
func (e *Evaluator) Evaluate(ctx context.Context, ind model.Individual, cp detector.Checkpoint) (float64, Detail, detector.Checkpoint, error) {
	detail := Detail{Outcomes: make([]probe.Outcome, 0, e.cfg.ProbesPerEval)}

	for i := 0; i < e.cfg.ProbesPerEval; i++ {
		if err := ctx.Err(); err != nil {
			return 0, detail, cp, err
		}
		port := e.cfg.Target.Ports[e.portCursor%len(e.cfg.Target.Ports)]
		e.portCursor++

		outcome := e.cfg.Prober.Send(ctx, ind.Descriptor, e.cfg.Target.Addr, port)
		detail.Probes++
		if outcome.Determined() {
			detail.Successes++
		}
		detail.Outcomes = append(detail.Outcomes, outcome)
	}

	if err := settle(ctx, e.cfg.SettleWindow); err != nil {
		return 0, detail, cp, err
	}

	next := cp
	feedCtx, cancel := context.WithTimeout(ctx, e.cfg.FeedTimeout)
	count, advanced, err := e.cfg.Feed.ReadSince(feedCtx, cp)
	cancel()
	switch {
	case err == nil:
		detail.Alerts = count
		detail.AlertsKnown = true
		if advanced > next {
			next = advanced
		}
	case ctx.Err() != nil:
		return 0, detail, cp, ctx.Err()
	default:
		// Fail open: an unreadable feed charges the configured neutral
		// penalty instead of aborting the run.
		e.cfg.Logf("detector feed read failed, alert count unknown: %v", err)
	}

	return e.score(ind.Descriptor, detail), detail, next, nil
}

func (e *Evaluator) score(d model.Descriptor, detail Detail) float64 {
	w := e.cfg.Weights

	score := 0.0
	if detail.Probes > 0 {
		score += w.SuccessReward * float64(detail.Successes) / float64(detail.Probes)
	}
	if detail.AlertsKnown {
		score -= w.AlertPenalty * float64(detail.Alerts)
	} else {
		score -= w.UnknownFeedPenalty
	}

	s := w.Shaping
	if s.TTLThreshold > 0 && d.TTL > s.TTLThreshold {
		score += s.HighTTLBonus
	}
	if s.PayloadThreshold > 0 && d.PayloadSize > s.PayloadThreshold {
		score += s.PayloadBonus
	}
	if s.WindowThreshold > 0 && d.WindowSize < s.WindowThreshold {
		score += s.LowWindowBonus
	}
	if s.DelayThreshold > 0 && d.Delay >= s.DelayThreshold {
		score += s.DelayBonus
	}
	return score
}

func settle(ctx context.Context, window time.Duration) error {
	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
