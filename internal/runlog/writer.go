// Package runlog writes the durable account of one run: a per-run directory
// holding run_summary.json (metadata plus per-generation records) and
// entropy.log (one JSON line of per-gene diversity per generation).
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"popos/internal/model"
)

const (
	summaryFile = "run_summary.json"
	entropyFile = "entropy.log"
)

type entropyEntry struct {
	Generation  int               `json:"generation"`
	BestFitness float64           `json:"best_fitness"`
	Entropy     model.GeneEntropy `json:"entropy"`
}

// Writer owns one run's record. Generation summaries append in order; the
// summary file is rewritten atomically each time so a crash never leaves a
// half-written record; Finalize closes the record exactly once.
type Writer struct {
	dir       string
	record    model.RunRecord
	entropy   *os.File
	finalized bool
}

func NewWriter(baseDir string, record model.RunRecord) (*Writer, error) {
	if record.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	dir := filepath.Join(baseDir, record.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if record.StartedAtUTC == "" {
		record.StartedAtUTC = time.Now().UTC().Format(time.RFC3339)
	}

	entropy, err := os.Create(filepath.Join(dir, entropyFile))
	if err != nil {
		return nil, err
	}

	w := &Writer{dir: dir, record: record, entropy: entropy}
	if err := w.writeSummary(); err != nil {
		entropy.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) Record() model.RunRecord {
	return w.record
}

func (w *Writer) RecordGeneration(summary model.GenerationSummary) error {
	if w.finalized {
		return fmt.Errorf("run record is finalized")
	}
	w.record.Generations = append(w.record.Generations, summary)
	if summary.BestFitness > w.record.BestFitness || len(w.record.Generations) == 1 {
		w.record.BestFitness = summary.BestFitness
	}

	entry := entropyEntry{
		Generation:  summary.Generation,
		BestFitness: summary.BestFitness,
		Entropy:     summary.Entropy,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := w.entropy.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := w.entropy.Sync(); err != nil {
		return err
	}
	return w.writeSummary()
}

func (w *Writer) Finalize(reason model.StopReason, bestFitness float64) error {
	if w.finalized {
		return fmt.Errorf("run record is finalized")
	}
	w.finalized = true
	w.record.FinishedAtUTC = time.Now().UTC().Format(time.RFC3339)
	w.record.StopReason = reason
	if bestFitness > w.record.BestFitness {
		w.record.BestFitness = bestFitness
	}
	w.record.Finalized = true

	if err := w.writeSummary(); err != nil {
		return err
	}
	return w.entropy.Close()
}

func (w *Writer) writeSummary() error {
	data, err := json.MarshalIndent(w.record, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(w.dir, ".summary-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(w.dir, summaryFile))
}
