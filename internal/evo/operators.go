package evo

import (
	"fmt"
	"math/rand"

	"popos/internal/model"
)

// Operator rewrites a descriptor without I/O. Results always satisfy the
// supplied bounds.
type Operator interface {
	Name() string
	Apply(rng *rand.Rand, d model.Descriptor, bounds model.Bounds) model.Descriptor
}

// RandomDescriptor draws every gene independently and uniformly within bounds.
func RandomDescriptor(rng *rand.Rand, bounds model.Bounds) model.Descriptor {
	return model.Descriptor{
		TTL:         randomInt(rng, bounds.TTL),
		PayloadSize: randomInt(rng, bounds.PayloadSize),
		Flags:       bounds.Flags[rng.Intn(len(bounds.Flags))],
		WindowSize:  randomInt(rng, bounds.WindowSize),
		Delay:       randomFloat(rng, bounds.Delay),
	}
}

// UniformMutation flips each gene independently with probability Rate.
// Numeric genes perturb within a fraction of their range with probability
// PerturbChance, otherwise reseed uniformly; either way the result is clamped
// into bounds. Categorical genes always reseed.
type UniformMutation struct {
	Rate          float64
	PerturbChance float64
	PerturbSpan   float64
}

func (UniformMutation) Name() string {
	return "uniform_gene"
}

func (m UniformMutation) Apply(rng *rand.Rand, d model.Descriptor, bounds model.Bounds) model.Descriptor {
	span := m.PerturbSpan
	if span <= 0 {
		span = 0.25
	}

	mutated := d
	if rng.Float64() < m.Rate {
		mutated.TTL = m.mutateInt(rng, mutated.TTL, bounds.TTL, span)
	}
	if rng.Float64() < m.Rate {
		mutated.PayloadSize = m.mutateInt(rng, mutated.PayloadSize, bounds.PayloadSize, span)
	}
	if rng.Float64() < m.Rate {
		mutated.Flags = bounds.Flags[rng.Intn(len(bounds.Flags))]
	}
	if rng.Float64() < m.Rate {
		mutated.WindowSize = m.mutateInt(rng, mutated.WindowSize, bounds.WindowSize, span)
	}
	if rng.Float64() < m.Rate {
		mutated.Delay = m.mutateFloat(rng, mutated.Delay, bounds.Delay, span)
	}
	return mutated
}

func (m UniformMutation) mutateInt(rng *rand.Rand, v int, r model.IntRange, span float64) int {
	if rng.Float64() < m.PerturbChance {
		width := float64(r.Max-r.Min) * span
		delta := int((rng.Float64()*2 - 1) * width)
		return r.Clamp(v + delta)
	}
	return randomInt(rng, r)
}

func (m UniformMutation) mutateFloat(rng *rand.Rand, v float64, r model.FloatRange, span float64) float64 {
	if rng.Float64() < m.PerturbChance {
		width := (r.Max - r.Min) * span
		delta := (rng.Float64()*2 - 1) * width
		return r.Clamp(v + delta)
	}
	return randomFloat(rng, r)
}

// UniformCrossover assigns each gene of both children by an independent coin
// flip over which parent contributes it. Genes inherit from valid parents, so
// no clamping happens here.
func UniformCrossover(rng *rand.Rand, a, b model.Descriptor) (model.Descriptor, model.Descriptor) {
	childA, childB := a, b
	if rng.Intn(2) == 0 {
		childA.TTL, childB.TTL = b.TTL, a.TTL
	}
	if rng.Intn(2) == 0 {
		childA.PayloadSize, childB.PayloadSize = b.PayloadSize, a.PayloadSize
	}
	if rng.Intn(2) == 0 {
		childA.Flags, childB.Flags = b.Flags, a.Flags
	}
	if rng.Intn(2) == 0 {
		childA.WindowSize, childB.WindowSize = b.WindowSize, a.WindowSize
	}
	if rng.Intn(2) == 0 {
		childA.Delay, childB.Delay = b.Delay, a.Delay
	}
	return childA, childB
}

func randomInt(rng *rand.Rand, r model.IntRange) int {
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

func randomFloat(rng *rand.Rand, r model.FloatRange) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// NewPopulation builds generation zero with uniformly drawn descriptors and
// deterministic lineage ids derived from the run id.
func NewPopulation(rng *rand.Rand, size int, bounds model.Bounds, runID string) (model.Population, error) {
	if size <= 0 {
		return model.Population{}, fmt.Errorf("population size must be > 0")
	}
	if err := bounds.Validate(); err != nil {
		return model.Population{}, fmt.Errorf("gene bounds: %w", err)
	}

	individuals := make([]model.Individual, 0, size)
	for i := 0; i < size; i++ {
		individuals = append(individuals, model.Individual{
			Descriptor: RandomDescriptor(rng, bounds),
			Generation: 0,
			LineageID:  fmt.Sprintf("%s-g0-i%d", runID, i),
		})
	}
	return model.Population{Individuals: individuals, Generation: 0}, nil
}
