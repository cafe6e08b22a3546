package pitch

import (
	"math"
	"testing"
)

const testSampleRate = 22050

func sine(freq float64, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 0.8 * math.Sin(2*math.Pi*freq*float64(i)/float64(testSampleRate))
	}
	return x
}

func TestTrackPureTones(t *testing.T) {
	e := NewExtractor(testSampleRate)

	tests := []struct {
		name string
		freq float64
	}{
		{"low voice", 110},
		{"a3", 220},
		{"concert a", 440},
		{"soprano", 660},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := e.Track(sine(tt.freq, testSampleRate))
			if len(frames) == 0 {
				t.Fatal("no frames produced")
			}

			voiced := 0
			for _, f := range frames {
				if !f.Voiced() {
					continue
				}
				voiced++
				if math.Abs(f.Frequency-tt.freq) > tt.freq*0.03 {
					t.Fatalf("frequency %f too far from %f", f.Frequency, tt.freq)
				}
				if f.Confidence <= 0 || f.Confidence > 1 {
					t.Fatalf("confidence %f out of range", f.Confidence)
				}
			}
			if float64(voiced) < 0.8*float64(len(frames)) {
				t.Errorf("only %d/%d frames voiced for a pure tone", voiced, len(frames))
			}
		})
	}
}

func TestTrackSilence(t *testing.T) {
	e := NewExtractor(testSampleRate)
	frames := e.Track(make([]float64, testSampleRate))

	for _, f := range frames {
		if f.Voiced() {
			t.Fatalf("silent input produced voiced frame at %f", f.Time)
		}
	}
	if VoicedRatio(frames) != 0 {
		t.Error("voiced ratio of silence must be 0")
	}
}

func TestTrackDeterministic(t *testing.T) {
	e := NewExtractor(testSampleRate)
	x := sine(330, testSampleRate/2)

	a := e.Track(x)
	b := e.Track(x)

	if len(a) != len(b) {
		t.Fatalf("frame counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("frame %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestTrackFrameTimes(t *testing.T) {
	e := NewExtractor(testSampleRate)
	frames := e.Track(sine(440, testSampleRate))

	hop := float64(e.HopSize) / float64(testSampleRate)
	for i, f := range frames {
		want := float64(i) * hop
		if math.Abs(f.Time-want) > 1e-9 {
			t.Fatalf("frame %d time = %f, want %f", i, f.Time, want)
		}
	}
}

func TestVoicedRatio(t *testing.T) {
	e := NewExtractor(testSampleRate)

	// Half tone, half silence.
	x := sine(440, testSampleRate)
	x = append(x, make([]float64, testSampleRate)...)

	ratio := VoicedRatio(e.Track(x))
	if ratio < 0.3 || ratio > 0.7 {
		t.Errorf("voiced ratio = %f, want roughly half", ratio)
	}
}

func TestMedianFrequency(t *testing.T) {
	frames := []Frame{
		{Frequency: 0},
		{Frequency: 440, Confidence: 0.9},
		{Frequency: 442, Confidence: 0.9},
		{Frequency: 438, Confidence: 0.9},
		{Frequency: 0},
	}
	got := MedianFrequency(frames)
	if got != 440 {
		t.Errorf("median frequency = %f, want 440", got)
	}

	if MedianFrequency(nil) != 0 {
		t.Error("empty track must give 0")
	}
	if MedianFrequency([]Frame{{Frequency: 0}}) != 0 {
		t.Error("all-unvoiced track must give 0")
	}
}
