package model

import "testing"

func TestDefaultBoundsValidate(t *testing.T) {
	if err := DefaultBounds().Validate(); err != nil {
		t.Fatalf("default bounds should validate: %v", err)
	}
}

func TestBoundsValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Bounds)
	}{
		{"ttl zero min", func(b *Bounds) { b.TTL.Min = 0 }},
		{"ttl above 255", func(b *Bounds) { b.TTL.Max = 256 }},
		{"ttl inverted", func(b *Bounds) { b.TTL.Min = 100; b.TTL.Max = 10 }},
		{"payload negative min", func(b *Bounds) { b.PayloadSize.Min = -1 }},
		{"empty flag enumeration", func(b *Bounds) { b.Flags = nil }},
		{"unknown flag combination", func(b *Bounds) { b.Flags = []string{"SYN"} }},
		{"window above 65535", func(b *Bounds) { b.WindowSize.Max = 70000 }},
		{"delay negative min", func(b *Bounds) { b.Delay.Min = -0.5 }},
		{"delay inverted", func(b *Bounds) { b.Delay.Min = 1.5; b.Delay.Max = 0.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bounds := DefaultBounds()
			tc.mutate(&bounds)
			if err := bounds.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestBoundsContains(t *testing.T) {
	bounds := DefaultBounds()

	inside := Descriptor{TTL: 64, PayloadSize: 200, Flags: "S", WindowSize: 8192, Delay: 0.5}
	if !bounds.Contains(inside) {
		t.Fatalf("descriptor %+v should be inside default bounds", inside)
	}

	cases := []struct {
		name string
		d    Descriptor
	}{
		{"ttl too low", Descriptor{TTL: 0, Flags: "S"}},
		{"payload too large", Descriptor{TTL: 64, PayloadSize: 2000, Flags: "S"}},
		{"unknown flags", Descriptor{TTL: 64, Flags: "X"}},
		{"delay too large", Descriptor{TTL: 64, Flags: "S", Delay: 3.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if bounds.Contains(tc.d) {
				t.Fatalf("descriptor %+v should be outside default bounds", tc.d)
			}
		})
	}
}

func TestBoundsContainsEmptyFlagSet(t *testing.T) {
	bounds := DefaultBounds()
	d := Descriptor{TTL: 64, Flags: ""}
	if !bounds.Contains(d) {
		t.Fatal("the empty flag set is a legal gene value")
	}
}

func TestClamp(t *testing.T) {
	r := IntRange{Min: 10, Max: 20}
	if got := r.Clamp(5); got != 10 {
		t.Fatalf("Clamp(5) = %d, want 10", got)
	}
	if got := r.Clamp(25); got != 20 {
		t.Fatalf("Clamp(25) = %d, want 20", got)
	}
	if got := r.Clamp(15); got != 15 {
		t.Fatalf("Clamp(15) = %d, want 15", got)
	}

	f := FloatRange{Min: 0, Max: 2}
	if got := f.Clamp(-0.1); got != 0 {
		t.Fatalf("Clamp(-0.1) = %g, want 0", got)
	}
	if got := f.Clamp(2.5); got != 2 {
		t.Fatalf("Clamp(2.5) = %g, want 2", got)
	}
}
