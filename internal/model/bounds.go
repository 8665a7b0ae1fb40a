package model

import "fmt"

type IntRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func (r IntRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

func (r IntRange) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

type FloatRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r FloatRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r FloatRange) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Bounds declares the legal range of every gene. Operators must keep each gene
// inside its range; anything outside is a bug, not a value to coerce.
type Bounds struct {
	TTL         IntRange   `json:"ttl" yaml:"ttl"`
	PayloadSize IntRange   `json:"payload_size" yaml:"payload_size"`
	Flags       []string   `json:"flags" yaml:"flags"`
	WindowSize  IntRange   `json:"window_size" yaml:"window_size"`
	Delay       FloatRange `json:"delay" yaml:"delay"`
}

func DefaultBounds() Bounds {
	return Bounds{
		TTL:         IntRange{Min: 1, Max: 255},
		PayloadSize: IntRange{Min: 0, Max: 1500},
		Flags:       append([]string(nil), FlagSets...),
		WindowSize:  IntRange{Min: 0, Max: 65535},
		Delay:       FloatRange{Min: 0, Max: 2.0},
	}
}

func (b Bounds) Validate() error {
	if b.TTL.Min < 1 || b.TTL.Max > 255 || b.TTL.Min > b.TTL.Max {
		return fmt.Errorf("ttl bounds must satisfy 1 <= min <= max <= 255, got [%d,%d]", b.TTL.Min, b.TTL.Max)
	}
	if b.PayloadSize.Min < 0 || b.PayloadSize.Min > b.PayloadSize.Max {
		return fmt.Errorf("payload size bounds must satisfy 0 <= min <= max, got [%d,%d]", b.PayloadSize.Min, b.PayloadSize.Max)
	}
	if len(b.Flags) == 0 {
		return fmt.Errorf("flag set enumeration must not be empty")
	}
	valid := make(map[string]struct{}, len(FlagSets))
	for _, f := range FlagSets {
		valid[f] = struct{}{}
	}
	for _, f := range b.Flags {
		if _, ok := valid[f]; !ok {
			return fmt.Errorf("unknown flag combination %q", f)
		}
	}
	if b.WindowSize.Min < 0 || b.WindowSize.Max > 65535 || b.WindowSize.Min > b.WindowSize.Max {
		return fmt.Errorf("window size bounds must satisfy 0 <= min <= max <= 65535, got [%d,%d]", b.WindowSize.Min, b.WindowSize.Max)
	}
	if b.Delay.Min < 0 || b.Delay.Min > b.Delay.Max {
		return fmt.Errorf("delay bounds must satisfy 0 <= min <= max, got [%g,%g]", b.Delay.Min, b.Delay.Max)
	}
	return nil
}

// Contains reports whether every gene of d lies inside its declared range.
func (b Bounds) Contains(d Descriptor) bool {
	if !b.TTL.Contains(d.TTL) || !b.PayloadSize.Contains(d.PayloadSize) {
		return false
	}
	if !b.WindowSize.Contains(d.WindowSize) || !b.Delay.Contains(d.Delay) {
		return false
	}
	for _, f := range b.Flags {
		if d.Flags == f {
			return true
		}
	}
	return false
}
