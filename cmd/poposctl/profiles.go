package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"popos/internal/fitness"
	"popos/internal/model"
	poposapi "popos/pkg/popos"
)

// evolveProfile is the on-disk form of an evolve configuration. Every field is
// optional; unset fields leave the corresponding flag value alone.
type evolveProfile struct {
	Population     *int     `json:"population" yaml:"population"`
	Generations    *int     `json:"generations" yaml:"generations"`
	MinGenerations *int     `json:"min_generations" yaml:"min_generations"`
	EliteCount     *int     `json:"elite_count" yaml:"elite_count"`
	MutationRate   *float64 `json:"mutation_rate" yaml:"mutation_rate"`
	DecayMutation  *bool    `json:"decay_mutation" yaml:"decay_mutation"`
	PerturbChance  *float64 `json:"perturb_chance" yaml:"perturb_chance"`
	TournamentSize *int     `json:"tournament_size" yaml:"tournament_size"`
	Stagnation     *int     `json:"stagnation" yaml:"stagnation"`
	FitnessGoal    *float64 `json:"fitness_goal" yaml:"fitness_goal"`
	Seed           *int64   `json:"seed" yaml:"seed"`
	ProbesPerEval  *int     `json:"probes_per_eval" yaml:"probes_per_eval"`
	SettleMillis   *int     `json:"settle_ms" yaml:"settle_ms"`
	FeedMillis     *int     `json:"feed_timeout_ms" yaml:"feed_timeout_ms"`
	DialMillis     *int     `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`

	Weights *fitness.Weights `json:"weights" yaml:"weights"`
	Bounds  *model.Bounds    `json:"bounds" yaml:"bounds"`
}

func loadProfile(path string) (*evolveProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	profile := &evolveProfile{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, profile); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, profile); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("profile %s: unsupported extension (want .yaml, .yml, or .json)", path)
	}
	return profile, nil
}

func (p *evolveProfile) apply(req *poposapi.EvolveRequest) {
	if p.Population != nil {
		req.Population = *p.Population
	}
	if p.Generations != nil {
		req.Generations = *p.Generations
	}
	if p.MinGenerations != nil {
		req.MinGenerations = *p.MinGenerations
	}
	if p.EliteCount != nil {
		req.EliteCount = *p.EliteCount
	}
	if p.MutationRate != nil {
		req.MutationRate = *p.MutationRate
	}
	if p.DecayMutation != nil {
		req.DecayMutation = *p.DecayMutation
	}
	if p.PerturbChance != nil {
		req.PerturbChance = *p.PerturbChance
	}
	if p.TournamentSize != nil {
		req.TournamentSize = *p.TournamentSize
	}
	if p.Stagnation != nil {
		req.Stagnation = *p.Stagnation
	}
	if p.FitnessGoal != nil {
		req.FitnessGoal = *p.FitnessGoal
	}
	if p.Seed != nil {
		req.Seed = *p.Seed
	}
	if p.ProbesPerEval != nil {
		req.ProbesPerEval = *p.ProbesPerEval
	}
	if p.SettleMillis != nil {
		req.SettleWindow = millis(*p.SettleMillis)
	}
	if p.FeedMillis != nil {
		req.FeedTimeout = millis(*p.FeedMillis)
	}
	if p.DialMillis != nil {
		req.DialTimeout = millis(*p.DialMillis)
	}
	if p.Weights != nil {
		req.Weights = p.Weights
	}
	if p.Bounds != nil {
		req.Bounds = p.Bounds
	}
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
