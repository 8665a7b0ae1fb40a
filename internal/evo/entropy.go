package evo

import (
	"fmt"
	"math"

	"popos/internal/model"
)

// Delay genes are compared at centisecond resolution when counting value
// frequencies; finer differences are below probe-pacing jitter.
func delayKey(delay float64) string {
	return fmt.Sprintf("%.2f", delay)
}

func geneKeys(individuals []model.Individual) map[string][]string {
	keys := map[string][]string{}
	for _, ind := range individuals {
		d := ind.Descriptor
		keys["ttl"] = append(keys["ttl"], fmt.Sprintf("%d", d.TTL))
		keys["payload_size"] = append(keys["payload_size"], fmt.Sprintf("%d", d.PayloadSize))
		keys["flags"] = append(keys["flags"], d.Flags)
		keys["window_size"] = append(keys["window_size"], fmt.Sprintf("%d", d.WindowSize))
		keys["delay"] = append(keys["delay"], delayKey(d.Delay))
	}
	return keys
}

func shannon(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	counts := map[string]int{}
	for _, v := range values {
		counts[v]++
	}
	entropy := 0.0
	total := float64(len(values))
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// PopulationEntropy measures per-gene value diversity across one generation.
func PopulationEntropy(individuals []model.Individual) model.GeneEntropy {
	keys := geneKeys(individuals)
	return model.GeneEntropy{
		TTL:         shannon(keys["ttl"]),
		PayloadSize: shannon(keys["payload_size"]),
		Flags:       shannon(keys["flags"]),
		WindowSize:  shannon(keys["window_size"]),
		Delay:       shannon(keys["delay"]),
	}
}

// Surprisal is an individual's total gene-level information content against
// the population's value distributions. Common gene values score low, so a
// lower surprisal marks a simpler, more representative descriptor.
func Surprisal(d model.Descriptor, individuals []model.Individual) float64 {
	if len(individuals) == 0 {
		return 0
	}
	keys := geneKeys(individuals)
	total := float64(len(individuals))
	sum := 0.0
	for gene, value := range map[string]string{
		"ttl":          fmt.Sprintf("%d", d.TTL),
		"payload_size": fmt.Sprintf("%d", d.PayloadSize),
		"flags":        d.Flags,
		"window_size":  fmt.Sprintf("%d", d.WindowSize),
		"delay":        delayKey(d.Delay),
	} {
		count := 0
		for _, v := range keys[gene] {
			if v == value {
				count++
			}
		}
		if count == 0 {
			count = 1
		}
		sum += -math.Log2(float64(count) / total)
	}
	return sum
}
