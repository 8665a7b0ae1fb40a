package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// FlagSets enumerates the valid TCP flag combinations a descriptor may carry.
// The empty string is a null-flag probe.
var FlagSets = []string{"S", "A", "F", "R", "P", "SA", "FA", "RA", "PA", ""}

// Descriptor is the morphology of a single probe: every tunable field of one
// transmitted packet, each gene bounded by the run's Bounds.
type Descriptor struct {
	TTL         int     `json:"ttl"`
	PayloadSize int     `json:"payload_size"`
	Flags       string  `json:"flags"`
	WindowSize  int     `json:"window_size"`
	Delay       float64 `json:"delay"`
}

type Individual struct {
	VersionedRecord
	Descriptor Descriptor `json:"descriptor"`
	Fitness    float64    `json:"fitness"`
	Evaluated  bool       `json:"evaluated"`
	Generation int        `json:"generation"`
	LineageID  string     `json:"lineage_id"`
}

type Population struct {
	VersionedRecord
	Individuals []Individual `json:"individuals"`
	Generation  int          `json:"generation"`
}

// Target identifies where probes go. Ports is never empty for a valid target.
type Target struct {
	Addr  string `json:"addr"`
	Ports []int  `json:"ports"`
}

// GeneEntropy holds the Shannon entropy of each gene's value distribution
// across one generation's population.
type GeneEntropy struct {
	TTL         float64 `json:"ttl"`
	PayloadSize float64 `json:"payload_size"`
	Flags       float64 `json:"flags"`
	WindowSize  float64 `json:"window_size"`
	Delay       float64 `json:"delay"`
}

type GenerationSummary struct {
	Generation   int         `json:"generation"`
	BestFitness  float64     `json:"best_fitness"`
	MeanFitness  float64     `json:"mean_fitness"`
	WorstFitness float64     `json:"worst_fitness"`
	BestAlerts   int         `json:"best_alerts"`
	AlertTotal   int         `json:"alert_total"`
	Entropy      GeneEntropy `json:"entropy"`
}

type StopReason string

const (
	StopReasonGenerationCap StopReason = "generation_cap"
	StopReasonStagnation    StopReason = "stagnation"
	StopReasonFitnessGoal   StopReason = "fitness_goal"
	StopReasonCancelled     StopReason = "cancelled"
)

// RunRecord is the durable account of one evolutionary run. The engine owns it
// for the run's lifetime, appends one GenerationSummary per generation, and
// finalizes it exactly once.
type RunRecord struct {
	VersionedRecord
	RunID          string              `json:"run_id"`
	Target         Target              `json:"target"`
	StartedAtUTC   string              `json:"started_at_utc"`
	FinishedAtUTC  string              `json:"finished_at_utc,omitempty"`
	PopulationSize int                 `json:"population_size"`
	Generations    []GenerationSummary `json:"generations"`
	BestFitness    float64             `json:"best_fitness"`
	StopReason     StopReason          `json:"stop_reason,omitempty"`
	Finalized      bool                `json:"finalized"`
}

// PlanRecord is the stored form of one persisted probe plan: the descriptors
// written for a run's best individual at a given generation.
type PlanRecord struct {
	VersionedRecord
	RunID       string       `json:"run_id"`
	Generation  int          `json:"generation"`
	Fitness     float64      `json:"fitness"`
	Descriptors []Descriptor `json:"descriptors"`
}
