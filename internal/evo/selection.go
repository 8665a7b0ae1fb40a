package evo

import (
	"fmt"
	"math/rand"
	"sort"

	"popos/internal/model"
)

// Scored pairs an evaluated individual with the alert evidence behind its
// fitness. AlertsKnown is false when the detector feed was unreadable during
// evaluation.
type Scored struct {
	Individual  model.Individual
	Alerts      int
	AlertsKnown bool
}

// Rank orders scored individuals best first. Ties break deterministically:
// fewer alerts, then lower total gene surprisal against the population, then
// lineage id.
func Rank(scored []Scored) []Scored {
	ranked := make([]Scored, len(scored))
	copy(ranked, scored)

	individuals := make([]model.Individual, 0, len(ranked))
	for _, s := range ranked {
		individuals = append(individuals, s.Individual)
	}
	surprisal := make(map[string]float64, len(ranked))
	for _, s := range ranked {
		surprisal[s.Individual.LineageID] = Surprisal(s.Individual.Descriptor, individuals)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Individual.Fitness != b.Individual.Fitness {
			return a.Individual.Fitness > b.Individual.Fitness
		}
		if a.Alerts != b.Alerts {
			return a.Alerts < b.Alerts
		}
		sa, sb := surprisal[a.Individual.LineageID], surprisal[b.Individual.LineageID]
		if sa != sb {
			return sa < sb
		}
		return a.Individual.LineageID < b.Individual.LineageID
	})
	return ranked
}

// Selector chooses a parent from ranked individuals for reproduction.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []Scored) (model.Individual, error)
}

// TournamentSelector samples candidates uniformly and keeps the best ranked.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []Scored) (model.Individual, error) {
	if rng == nil {
		return model.Individual{}, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return model.Individual{}, fmt.Errorf("ranked population is empty")
	}

	size := s.Size
	if size <= 0 {
		size = 4
	}
	if size > len(ranked) {
		size = len(ranked)
	}

	// ranked is best-first, so the lowest sampled index wins the tournament.
	best := rng.Intn(len(ranked))
	for i := 1; i < size; i++ {
		candidate := rng.Intn(len(ranked))
		if candidate < best {
			best = candidate
		}
	}
	return ranked[best].Individual, nil
}
