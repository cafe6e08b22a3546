package onset

import (
	"math"
	"testing"
)

const testSampleRate = 22050

// bursts synthesizes tone bursts starting at the given times.
func bursts(starts []float64, seconds float64) []float64 {
	x := make([]float64, int(seconds*testSampleRate))
	length := testSampleRate * 15 / 100 // 150ms

	for _, start := range starts {
		s := int(start * testSampleRate)
		for i := 0; i < length && s+i < len(x); i++ {
			x[s+i] = 0.9 * math.Sin(2*math.Pi*800*float64(i)/testSampleRate)
		}
	}
	return x
}

func TestDetectBursts(t *testing.T) {
	d := NewDetector(testSampleRate)
	starts := []float64{0.5, 1.0, 1.5, 2.0}

	onsets := d.Detect(bursts(starts, 3))
	if len(onsets) != len(starts) {
		t.Fatalf("detected %d onsets, want %d", len(onsets), len(starts))
	}

	for i, o := range onsets {
		if math.Abs(o.Time-starts[i]) > 0.08 {
			t.Errorf("onset %d at %f, want near %f", i, o.Time, starts[i])
		}
		if o.Strength <= 0 {
			t.Errorf("onset %d has non-positive strength", i)
		}
	}

	for i := 1; i < len(onsets); i++ {
		if onsets[i].Time <= onsets[i-1].Time {
			t.Fatal("onsets not strictly ordered")
		}
	}
}

func TestDetectSilence(t *testing.T) {
	d := NewDetector(testSampleRate)
	if onsets := d.Detect(make([]float64, testSampleRate*2)); len(onsets) != 0 {
		t.Errorf("silence produced %d onsets", len(onsets))
	}
}

func TestDetectBacktracksToRiseStart(t *testing.T) {
	d := NewDetector(testSampleRate)

	// A single burst: the reported time must not sit after the attack,
	// and not unreasonably early either.
	onsets := d.Detect(bursts([]float64{1.0}, 2))
	if len(onsets) != 1 {
		t.Fatalf("detected %d onsets, want 1", len(onsets))
	}
	if onsets[0].Time > 1.03 || onsets[0].Time < 0.9 {
		t.Errorf("onset at %f, want just before 1.0", onsets[0].Time)
	}
}

func TestEnforceSpacing(t *testing.T) {
	d := NewDetector(testSampleRate)

	tests := []struct {
		name string
		in   []Onset
		want int
	}{
		{"empty", nil, 0},
		{"well separated", []Onset{{Time: 0.1}, {Time: 0.3}, {Time: 0.5}}, 3},
		{"double detection", []Onset{{Time: 0.1, Strength: 1}, {Time: 0.15, Strength: 2}, {Time: 0.5}}, 2},
		{"cluster collapses", []Onset{{Time: 0.1}, {Time: 0.12}, {Time: 0.14}, {Time: 0.16}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.enforceSpacing(tt.in)
			if len(got) != tt.want {
				t.Errorf("got %d onsets, want %d", len(got), tt.want)
			}
		})
	}
}

func TestEnforceSpacingKeepsStrongerStrength(t *testing.T) {
	d := NewDetector(testSampleRate)
	merged := d.enforceSpacing([]Onset{
		{Time: 0.10, Strength: 1.0},
		{Time: 0.15, Strength: 3.0},
	})
	if len(merged) != 1 {
		t.Fatalf("got %d onsets, want 1", len(merged))
	}
	if merged[0].Time != 0.10 {
		t.Errorf("merged time = %f, want the earlier 0.10", merged[0].Time)
	}
	if merged[0].Strength != 3.0 {
		t.Errorf("merged strength = %f, want the stronger 3.0", merged[0].Strength)
	}
}

func TestTimes(t *testing.T) {
	onsets := []Onset{{Time: 0.5}, {Time: 1.25}}
	times := Times(onsets)
	if len(times) != 2 || times[0] != 0.5 || times[1] != 1.25 {
		t.Errorf("unexpected times: %v", times)
	}
}
