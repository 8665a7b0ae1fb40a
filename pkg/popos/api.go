// Package popos exposes the evolutionary stealth-scan optimizer as a client
// API: baseline scans, evolutionary runs against a live detector feed, and
// replay of previously evolved probe plans.
package popos

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"popos/internal/artifact"
	"popos/internal/detector"
	"popos/internal/evo"
	"popos/internal/fitness"
	"popos/internal/model"
	"popos/internal/probe"
	"popos/internal/runlog"
	"popos/internal/storage"
)

const (
	defaultRunsDir  = "runs"
	defaultScansDir = "scans"
	defaultDBPath   = "popos.db"
)

type Options struct {
	StoreKind string
	DBPath    string
	RunsDir   string
	ScansDir  string
}

type Client struct {
	store    storage.Store
	runsDir  string
	scansDir string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.DBPath == "" {
		opts.DBPath = defaultDBPath
	}
	if opts.RunsDir == "" {
		opts.RunsDir = defaultRunsDir
	}
	if opts.ScansDir == "" {
		opts.ScansDir = defaultScansDir
	}

	store, err := storage.NewStore(opts.StoreKind, opts.DBPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &Client{store: store, runsDir: opts.RunsDir, scansDir: opts.ScansDir}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

type EvolveRequest struct {
	Target         model.Target
	Bounds         *model.Bounds
	Population     int
	Generations    int
	MinGenerations int
	EliteCount     int
	MutationRate   float64
	DecayMutation  bool
	PerturbChance  float64
	TournamentSize int
	Stagnation     int
	FitnessGoal    float64
	Seed           int64
	Weights        *fitness.Weights
	ProbesPerEval  int
	SettleWindow   time.Duration
	FeedTimeout    time.Duration
	DialTimeout    time.Duration
	AlertFile      string
	RunID          string

	// Prober and Feed override the live TCP prober and alert-file feed;
	// simulated runs and tests inject scripted ones here.
	Prober probe.Prober
	Feed   detector.Feed

	Logf func(format string, args ...any)
}

type EvolveSummary struct {
	RunID            string
	RunDir           string
	ArtifactPath     string
	BestFitness      float64
	BestDescriptor   model.Descriptor
	BestByGeneration []float64
	StopReason       model.StopReason
	GenerationsRun   int
}

// Evolve executes one full evolutionary run: it owns the run record, the
// detector checkpoint, and the scan artifacts for the run's lifetime, then
// hands the finalized results to the store.
func (c *Client) Evolve(ctx context.Context, req EvolveRequest) (EvolveSummary, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if req.Population <= 0 {
		req.Population = 10
	}
	if req.Generations <= 0 {
		req.Generations = 20
	}
	if req.EliteCount <= 0 {
		req.EliteCount = 1
	}
	if req.MutationRate == 0 {
		req.MutationRate = 0.1
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	bounds := model.DefaultBounds()
	if req.Bounds != nil {
		bounds = *req.Bounds
	}
	weights := fitness.DefaultWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}

	prober := req.Prober
	if prober == nil {
		prober = &probe.ConnectProber{DialTimeout: req.DialTimeout}
	}
	feed := req.Feed
	if feed == nil {
		if req.AlertFile == "" {
			return EvolveSummary{}, fmt.Errorf("an alert file or detector feed is required")
		}
		feed = &detector.FileFeed{Path: req.AlertFile}
	}

	evaluator, err := fitness.NewEvaluator(fitness.Config{
		Prober:        prober,
		Feed:          feed,
		Target:        req.Target,
		ProbesPerEval: req.ProbesPerEval,
		SettleWindow:  req.SettleWindow,
		FeedTimeout:   req.FeedTimeout,
		Weights:       weights,
		Logf:          req.Logf,
	})
	if err != nil {
		return EvolveSummary{}, fmt.Errorf("evaluation setup: %w", err)
	}

	writer, err := runlog.NewWriter(c.runsDir, model.RunRecord{
		VersionedRecord: storage.Stamp(),
		RunID:           runID,
		Target:          req.Target,
		PopulationSize:  req.Population,
	})
	if err != nil {
		return EvolveSummary{}, fmt.Errorf("run record setup: %w", err)
	}

	bridge := &artifact.Bridge{
		Dir:        c.scansDir,
		RunID:      runID,
		PlanLength: len(req.Target.Ports),
	}

	engine, err := evo.NewEngine(evo.Config{
		RunID:          runID,
		PopulationSize: req.Population,
		Generations:    req.Generations,
		MinGenerations: req.MinGenerations,
		EliteCount:     req.EliteCount,
		MutationRate:   req.MutationRate,
		DecayMutation:  req.DecayMutation,
		PerturbChance:  req.PerturbChance,
		TournamentSize: req.TournamentSize,
		Stagnation:     req.Stagnation,
		FitnessGoal:    req.FitnessGoal,
		Bounds:         bounds,
		Seed:           req.Seed,
		Evaluator:      evaluator,
		Recorder:       writer,
		Persister:      bridge,
		Selector:       evo.TournamentSelector{Size: req.TournamentSize},
		Logf:           req.Logf,
	})
	if err != nil {
		return EvolveSummary{}, fmt.Errorf("engine setup: %w", err)
	}

	initial, err := evo.NewPopulation(rand.New(rand.NewSource(req.Seed)), req.Population, bounds, runID)
	if err != nil {
		return EvolveSummary{}, fmt.Errorf("initial population: %w", err)
	}

	result, err := engine.Run(ctx, initial)
	if err != nil {
		return EvolveSummary{}, fmt.Errorf("evolution run %s: %w", runID, err)
	}

	if err := c.saveRun(ctx, writer.Record(), result); err != nil {
		return EvolveSummary{}, fmt.Errorf("save run %s: %w", runID, err)
	}

	return EvolveSummary{
		RunID:            runID,
		RunDir:           writer.Dir(),
		ArtifactPath:     result.BestPath,
		BestFitness:      result.Best.Individual.Fitness,
		BestDescriptor:   result.Best.Individual.Descriptor,
		BestByGeneration: result.BestByGeneration,
		StopReason:       result.StopReason,
		GenerationsRun:   len(result.Generations),
	}, nil
}

func (c *Client) saveRun(ctx context.Context, record model.RunRecord, result evo.Result) error {
	if err := c.store.SaveRunRecord(ctx, record); err != nil {
		return err
	}
	if err := c.store.SaveFitnessHistory(ctx, record.RunID, result.BestByGeneration); err != nil {
		return err
	}
	if result.BestPath == "" {
		return nil
	}

	planLength := len(record.Target.Ports)
	if planLength <= 0 {
		planLength = 1
	}
	descriptors := make([]model.Descriptor, 0, planLength)
	for i := 0; i < planLength; i++ {
		descriptors = append(descriptors, result.Best.Individual.Descriptor)
	}
	return c.store.SavePlan(ctx, model.PlanRecord{
		VersionedRecord: storage.Stamp(),
		RunID:           record.RunID,
		Generation:      result.Best.Individual.Generation,
		Fitness:         result.Best.Individual.Fitness,
		Descriptors:     descriptors,
	})
}

type ReplayRequest struct {
	ArtifactPath string
	Target       model.Target
	DialTimeout  time.Duration
	Prober       probe.Prober
}

type ReplaySummary struct {
	Outcomes []probe.Outcome
	Counts   map[probe.State]int
}

// Replay loads a persisted plan and re-executes it probe for probe. A
// malformed artifact fails before any transmission.
func (c *Client) Replay(ctx context.Context, req ReplayRequest) (ReplaySummary, error) {
	descriptors, err := artifact.Load(req.ArtifactPath)
	if err != nil {
		return ReplaySummary{}, fmt.Errorf("load replay artifact: %w", err)
	}

	prober := req.Prober
	if prober == nil {
		prober = &probe.ConnectProber{DialTimeout: req.DialTimeout}
	}
	outcomes, err := artifact.Replay(ctx, descriptors, req.Target, prober)
	if err != nil {
		return ReplaySummary{}, fmt.Errorf("replay: %w", err)
	}
	return ReplaySummary{Outcomes: outcomes, Counts: artifact.SummarizeOutcomes(outcomes)}, nil
}

type ScanRequest struct {
	Target      model.Target
	DialTimeout time.Duration
	Prober      probe.Prober
}

type ScanResult struct {
	Port    int
	Outcome probe.Outcome
}

// Scan runs a plain baseline sweep with default morphology, one probe per
// target port.
func (c *Client) Scan(ctx context.Context, req ScanRequest) ([]ScanResult, error) {
	if req.Target.Addr == "" || len(req.Target.Ports) == 0 {
		return nil, fmt.Errorf("scan target requires an address and at least one port")
	}
	prober := req.Prober
	if prober == nil {
		prober = &probe.ConnectProber{DialTimeout: req.DialTimeout}
	}

	baseline := model.Descriptor{TTL: 64, Flags: "S", WindowSize: 8192}
	results := make([]ScanResult, 0, len(req.Target.Ports))
	for _, port := range req.Target.Ports {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, ScanResult{
			Port:    port,
			Outcome: prober.Send(ctx, baseline, req.Target.Addr, port),
		})
	}
	return results, nil
}

// Runs returns every stored run record, ordered by run id.
func (c *Client) Runs(ctx context.Context) ([]model.RunRecord, error) {
	ids, err := c.store.ListRunIDs(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]model.RunRecord, 0, len(ids))
	for _, id := range ids {
		record, ok, err := c.store.GetRunRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (c *Client) FitnessHistory(ctx context.Context, runID string) ([]float64, error) {
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no fitness history for run %s", runID)
	}
	return history, nil
}

func (c *Client) LatestPlan(ctx context.Context, runID string) (model.PlanRecord, error) {
	plan, ok, err := c.store.GetLatestPlan(ctx, runID)
	if err != nil {
		return model.PlanRecord{}, err
	}
	if !ok {
		return model.PlanRecord{}, fmt.Errorf("no stored plan for run %s", runID)
	}
	return plan, nil
}
