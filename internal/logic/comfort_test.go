package logic

import (
	"math"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		humidex float64
		want    Comfort
	}{
		{-50, ComfortNoSignificantDiscomfort},
		{19.999, ComfortNoSignificantDiscomfort},
		{20.0, ComfortComfortable},
		{29.999, ComfortComfortable},
		{30.0, ComfortSomeDiscomfort},
		{39.999, ComfortSomeDiscomfort},
		{40.0, ComfortAvoidExertion},
		{45.999, ComfortAvoidExertion},
		{46.0, ComfortDangerous},
		{53.999, ComfortDangerous},
		{54.0, ComfortHeatStrokeImminent},
		{120, ComfortHeatStrokeImminent},
	}

	for _, tt := range tests {
		if got := Classify(tt.humidex); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.humidex, got, tt.want)
		}
	}
}

func TestClassifyMonotonicAndTotal(t *testing.T) {
	prev := Classify(-100)
	for h := -100.0; h <= 100; h += 0.25 {
		got := Classify(h)
		if got.Level() == 0 {
			t.Fatalf("Classify(%v) returned no level", h)
		}
		if got < prev {
			t.Fatalf("Classify(%v) = %s, lower than previous %s", h, got, prev)
		}
		prev = got
	}

	if got := Classify(math.Inf(-1)); got != ComfortNoSignificantDiscomfort {
		t.Errorf("Classify(-Inf) = %s", got)
	}
	if got := Classify(math.Inf(1)); got != ComfortHeatStrokeImminent {
		t.Errorf("Classify(+Inf) = %s", got)
	}
}

func TestComfortTokens(t *testing.T) {
	want := []string{
		"no_significant_discomfort",
		"comfortable",
		"some_discomfort",
		"avoid_exertion",
		"dangerous",
		"heat_stroke_imminent",
	}
	got := ComfortTokens()
	if len(got) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %q, want %q", i, got[i], want[i])
		}
		if Comforts[i].Level() != i+1 {
			t.Errorf("%q level: got %d, want %d", want[i], Comforts[i].Level(), i+1)
		}
	}
}

func TestComfortZeroValue(t *testing.T) {
	var c Comfort
	if c.String() != "" {
		t.Errorf("zero Comfort token: got %q, want empty", c.String())
	}
	if c.Level() != 0 {
		t.Errorf("zero Comfort level: got %d, want 0", c.Level())
	}
}

func TestComfortLabel(t *testing.T) {
	if got := ComfortComfortable.Label(); got != "Comfortable" {
		t.Errorf("Label: got %q", got)
	}
	if got := ComfortHeatStrokeImminent.Label(); got != "Heat stroke imminent" {
		t.Errorf("Label: got %q", got)
	}
}
