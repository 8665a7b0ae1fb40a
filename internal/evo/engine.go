package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"popos/internal/detector"
	"popos/internal/fitness"
	"popos/internal/model"
)

// Recorder receives the run record's generation summaries and its single
// finalization. internal/runlog implements it.
type Recorder interface {
	RecordGeneration(summary model.GenerationSummary) error
	Finalize(reason model.StopReason, bestFitness float64) error
}

// Persister stores a run's new best individual as a replayable artifact.
// internal/artifact implements it.
type Persister interface {
	Persist(ind model.Individual, generation int) (string, error)
}

type Config struct {
	RunID          string
	PopulationSize int
	Generations    int
	MinGenerations int
	EliteCount     int
	MutationRate   float64
	DecayMutation  bool
	PerturbChance  float64
	TournamentSize int
	Stagnation     int
	FitnessGoal    float64
	Bounds         model.Bounds
	Seed           int64
	Evaluator      fitness.Scorer
	Recorder       Recorder
	Persister      Persister
	Selector       Selector
	Logf           func(format string, args ...any)
}

type Result struct {
	BestByGeneration []float64
	Generations      []model.GenerationSummary
	Best             Scored
	BestPath         string
	StopReason       model.StopReason
	FinalPopulation  []Scored
}

// Engine drives the generational loop: evaluate, select, reproduce, record.
// Evaluation is strictly sequential; the detector checkpoint and the target's
// response stream are order-sensitive shared state, and alert attribution
// depends on one in-flight individual at a time.
type Engine struct {
	cfg        Config
	rng        *rand.Rand
	checkpoint detector.Checkpoint
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.MinGenerations < 0 || cfg.MinGenerations > cfg.Generations {
		return nil, fmt.Errorf("min generations must be in [0, generations]")
	}
	if cfg.EliteCount <= 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [1, population size]")
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("mutation rate must be in [0, 1]")
	}
	if cfg.PerturbChance < 0 || cfg.PerturbChance > 1 {
		return nil, fmt.Errorf("perturb chance must be in [0, 1]")
	}
	if cfg.Stagnation < 0 {
		return nil, fmt.Errorf("stagnation limit must be >= 0")
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("gene bounds: %w", err)
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{}
	}
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run executes the full state machine over an initial population and returns
// once a termination condition holds. Cancellation is honored between
// generations and between individual evaluations; the recorder always sees a
// finalization, and persisted artifacts are complete or absent.
func (e *Engine) Run(ctx context.Context, initial model.Population) (Result, error) {
	if len(initial.Individuals) != e.cfg.PopulationSize {
		return Result{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial.Individuals), e.cfg.PopulationSize)
	}

	population := make([]Scored, 0, e.cfg.PopulationSize)
	for _, ind := range initial.Individuals {
		population = append(population, Scored{Individual: ind})
	}

	result := Result{
		BestByGeneration: make([]float64, 0, e.cfg.Generations),
		Generations:      make([]model.GenerationSummary, 0, e.cfg.Generations),
	}
	bestEver := Scored{}
	haveBest := false
	sinceImprovement := 0

	finish := func(reason model.StopReason) (Result, error) {
		result.StopReason = reason
		result.FinalPopulation = population
		if haveBest {
			result.Best = bestEver
		}
		if e.cfg.Recorder != nil {
			best := 0.0
			if haveBest {
				best = bestEver.Individual.Fitness
			}
			if err := e.cfg.Recorder.Finalize(reason, best); err != nil {
				return result, fmt.Errorf("finalize run record: %w", err)
			}
		}
		return result, nil
	}

	for gen := 0; gen < e.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			return finish(model.StopReasonCancelled)
		}

		cancelled, err := e.evaluate(ctx, population, gen)
		if err != nil {
			return result, err
		}
		if cancelled {
			return finish(model.StopReasonCancelled)
		}

		ranked := Rank(population)
		population = ranked

		summary := e.summarize(ranked, gen)
		result.BestByGeneration = append(result.BestByGeneration, summary.BestFitness)
		result.Generations = append(result.Generations, summary)
		if e.cfg.Recorder != nil {
			if err := e.cfg.Recorder.RecordGeneration(summary); err != nil {
				return result, fmt.Errorf("record generation %d: %w", gen, err)
			}
		}

		improved := !haveBest || ranked[0].Individual.Fitness > bestEver.Individual.Fitness
		if improved {
			bestEver = ranked[0]
			haveBest = true
			sinceImprovement = 0
			if e.cfg.Persister != nil {
				path, err := e.cfg.Persister.Persist(bestEver.Individual, gen)
				if err != nil {
					return result, fmt.Errorf("persist generation %d best: %w", gen, err)
				}
				result.BestPath = path
			}
		} else {
			sinceImprovement++
		}

		if e.cfg.FitnessGoal != 0 && gen+1 >= e.cfg.MinGenerations && bestEver.Individual.Fitness >= e.cfg.FitnessGoal {
			return finish(model.StopReasonFitnessGoal)
		}
		if e.cfg.Stagnation > 0 && sinceImprovement >= e.cfg.Stagnation {
			return finish(model.StopReasonStagnation)
		}
		if gen == e.cfg.Generations-1 {
			break
		}

		population = e.reproduce(ranked, gen)
	}

	return finish(model.StopReasonGenerationCap)
}

// evaluate scores every individual lacking a fitness, in order, advancing the
// detector checkpoint monotonically. A cancellation mid-generation leaves the
// remaining individuals unevaluated and reports cancelled=true.
func (e *Engine) evaluate(ctx context.Context, population []Scored, generation int) (cancelled bool, err error) {
	for i := range population {
		if population[i].Individual.Evaluated {
			continue
		}
		if ctx.Err() != nil {
			return true, nil
		}

		score, detail, next, evalErr := e.cfg.Evaluator.Evaluate(ctx, population[i].Individual, e.checkpoint)
		if evalErr != nil {
			if errors.Is(evalErr, context.Canceled) || errors.Is(evalErr, context.DeadlineExceeded) || ctx.Err() != nil {
				return true, nil
			}
			// A broken evaluation charges the individual, not the run.
			e.cfg.Logf("evaluation failed for %s in generation %d: %v", population[i].Individual.LineageID, generation, evalErr)
			population[i].Individual.Fitness = 0
			population[i].Individual.Evaluated = true
			population[i].AlertsKnown = false
			continue
		}

		if next > e.checkpoint {
			e.checkpoint = next
		}
		population[i].Individual.Fitness = score
		population[i].Individual.Evaluated = true
		population[i].Alerts = detail.Alerts
		population[i].AlertsKnown = detail.AlertsKnown
	}
	return false, nil
}

func (e *Engine) summarize(ranked []Scored, generation int) model.GenerationSummary {
	individuals := make([]model.Individual, 0, len(ranked))
	total := 0.0
	alerts := 0
	for _, s := range ranked {
		individuals = append(individuals, s.Individual)
		total += s.Individual.Fitness
		alerts += s.Alerts
	}
	return model.GenerationSummary{
		Generation:   generation,
		BestFitness:  ranked[0].Individual.Fitness,
		MeanFitness:  total / float64(len(ranked)),
		WorstFitness: ranked[len(ranked)-1].Individual.Fitness,
		BestAlerts:   ranked[0].Alerts,
		AlertTotal:   alerts,
		Entropy:      PopulationEntropy(individuals),
	}
}

// reproduce builds the next generation: elites carried unchanged, the rest
// bred by tournament-selected parents, uniform crossover, and mutation.
func (e *Engine) reproduce(ranked []Scored, generation int) []Scored {
	next := make([]Scored, 0, e.cfg.PopulationSize)
	for i := 0; i < e.cfg.EliteCount && i < len(ranked); i++ {
		elite := ranked[i]
		elite.Individual.Generation = generation + 1
		next = append(next, elite)
	}

	rate := e.cfg.MutationRate
	if e.cfg.DecayMutation {
		rate = rate * (1 - float64(generation)/float64(e.cfg.Generations))
	}
	mutation := UniformMutation{Rate: rate, PerturbChance: e.cfg.PerturbChance}

	for len(next) < e.cfg.PopulationSize {
		parentA, errA := e.cfg.Selector.PickParent(e.rng, ranked)
		parentB, errB := e.cfg.Selector.PickParent(e.rng, ranked)
		if errA != nil || errB != nil {
			// Ranked is never empty here; fall back to the elite.
			parentA, parentB = ranked[0].Individual, ranked[0].Individual
		}

		childA, childB := UniformCrossover(e.rng, parentA.Descriptor, parentB.Descriptor)
		for _, d := range []model.Descriptor{childA, childB} {
			if len(next) >= e.cfg.PopulationSize {
				break
			}
			child := model.Individual{
				Descriptor: mutation.Apply(e.rng, d, e.cfg.Bounds),
				Generation: generation + 1,
				LineageID:  fmt.Sprintf("%s-g%d-i%d", e.cfg.RunID, generation+1, len(next)),
			}
			next = append(next, Scored{Individual: child})
		}
	}
	return next
}
