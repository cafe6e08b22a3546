package beat

import (
	"math"
	"testing"
)

const testSampleRate = 22050

// clickTrack synthesizes short tone bursts at the given tempo.
func clickTrack(bpm float64, seconds int) []float64 {
	x := make([]float64, testSampleRate*seconds)
	interval := 60 / bpm
	burst := testSampleRate / 10 // 100ms

	for t := 0.0; t < float64(seconds); t += interval {
		start := int(t * testSampleRate)
		for i := 0; i < burst && start+i < len(x); i++ {
			decay := 1 - float64(i)/float64(burst)
			x[start+i] = 0.9 * decay * math.Sin(2*math.Pi*1000*float64(i)/testSampleRate)
		}
	}
	return x
}

func TestEstimateClickTrack(t *testing.T) {
	e := NewEstimator(testSampleRate)
	grid := e.Estimate(clickTrack(120, 8))

	if grid.Fallback {
		t.Fatal("click track must not fall back")
	}
	if grid.Tempo < 110 || grid.Tempo > 130 {
		t.Errorf("tempo = %f, want ~120", grid.Tempo)
	}
	if len(grid.BeatTimes) < 8 {
		t.Fatalf("too few beats: %d", len(grid.BeatTimes))
	}

	// Strictly increasing, gaps near the beat interval. One hop of
	// slack on top of the 5% tolerance covers frame quantization.
	interval := 60 / grid.Tempo
	slack := 0.05*interval + float64(e.HopSize)/float64(testSampleRate)
	for i := 1; i < len(grid.BeatTimes); i++ {
		gap := grid.BeatTimes[i] - grid.BeatTimes[i-1]
		if gap <= 0 {
			t.Fatalf("beat times not strictly increasing at %d", i)
		}
		if math.Abs(gap-interval) > slack {
			t.Errorf("gap %f deviates from interval %f beyond tolerance", gap, interval)
		}
	}

	if grid.Confidence <= 0.1 {
		t.Errorf("confidence = %f, want clearly above fallback level", grid.Confidence)
	}
}

func TestEstimateSilence(t *testing.T) {
	e := NewEstimator(testSampleRate)
	grid := e.Estimate(make([]float64, testSampleRate*4))

	if !grid.Fallback {
		t.Fatal("silent audio must fall back")
	}
	if grid.Tempo != 120 {
		t.Errorf("fallback tempo = %f, want 120", grid.Tempo)
	}
	if grid.Confidence > 0.2 {
		t.Errorf("fallback confidence = %f, want low", grid.Confidence)
	}
	if len(grid.BeatTimes) == 0 {
		t.Fatal("fallback grid must still carry beats")
	}
}

func TestEstimateDeterministic(t *testing.T) {
	e := NewEstimator(testSampleRate)
	x := clickTrack(100, 6)

	a := e.Estimate(x)
	b := e.Estimate(x)

	if a.Tempo != b.Tempo || len(a.BeatTimes) != len(b.BeatTimes) {
		t.Fatal("estimates differ between runs")
	}
	for i := range a.BeatTimes {
		if a.BeatTimes[i] != b.BeatTimes[i] {
			t.Fatalf("beat %d differs between runs", i)
		}
	}
}

func TestDefaultGrid(t *testing.T) {
	grid := DefaultGrid(1.0, 3.0)

	if !grid.Fallback {
		t.Error("default grid must be marked fallback")
	}
	if grid.Offset() != 1.0 {
		t.Errorf("offset = %f, want 1.0", grid.Offset())
	}
	for i := 1; i < len(grid.BeatTimes); i++ {
		gap := grid.BeatTimes[i] - grid.BeatTimes[i-1]
		if math.Abs(gap-0.5) > 1e-9 {
			t.Fatalf("gap = %f, want 0.5", gap)
		}
	}

	// Zero-length audio still yields one beat.
	empty := DefaultGrid(0, 0)
	if len(empty.BeatTimes) != 1 {
		t.Errorf("empty audio grid has %d beats, want 1", len(empty.BeatTimes))
	}
}

func TestFoldTempo(t *testing.T) {
	e := NewEstimator(testSampleRate)

	tests := []struct {
		name string
		raw  float64
		want float64
	}{
		{"way too fast", 480, 120},
		{"way too slow", 30, 120},
		{"in range stays", 90, 90},
		{"slight halving", 320, 160},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.foldTempo(tt.raw); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("foldTempo(%f) = %f, want %f", tt.raw, got, tt.want)
			}
		})
	}
}

func TestGridOffset(t *testing.T) {
	empty := &Grid{}
	if empty.Offset() != 0 {
		t.Error("empty grid offset must be 0")
	}

	g := &Grid{BeatTimes: []float64{2.5, 3.0}}
	if g.Offset() != 2.5 {
		t.Errorf("offset = %f, want 2.5", g.Offset())
	}
}
