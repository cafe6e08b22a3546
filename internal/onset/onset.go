// Package onset detects candidate syllable onsets in a vocal waveform
// from the spectral-flux novelty curve.
package onset

import (
	"sort"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/dsp"
)

// Onset is a single detected start-of-sound event.
type Onset struct {
	Time     float64 `json:"time"`
	Strength float64 `json:"strength"`
}

// Detector holds peak-picking parameters.
type Detector struct {
	SampleRate int
	FrameSize  int
	HopSize    int

	// MedianWindow is the trailing window length in frames for the
	// adaptive threshold.
	MedianWindow int

	// ThresholdDelta is added on top of the trailing median; peaks
	// below it are ignored.
	ThresholdDelta float64

	// MinSpacing is the minimum distance between reported onsets in
	// seconds. Closer detections merge into the stronger one.
	MinSpacing float64
}

// NewDetector returns a detector tuned for sung syllables.
func NewDetector(sampleRate int) *Detector {
	return &Detector{
		SampleRate:     sampleRate,
		FrameSize:      dsp.FrameSize,
		HopSize:        dsp.HopSize,
		MedianWindow:   43, // ~1s of trailing context
		ThresholdDelta: 0.3,
		MinSpacing:     0.08,
	}
}

// Detect returns the ordered onset sequence for a mono waveform.
// Reported times are backtracked to the local minimum preceding each
// peak, aligning them with the start of the energy rise.
func (d *Detector) Detect(samples []float64) []Onset {
	stft := dsp.NewSTFT(d.FrameSize, d.HopSize)
	env := dsp.OnsetEnvelope(stft.Magnitudes(samples))
	return d.pick(env)
}

// pick runs adaptive peak-picking over a novelty curve.
func (d *Detector) pick(env []float64) []Onset {
	frameTime := float64(d.HopSize) / float64(d.SampleRate)

	var onsets []Onset
	window := make([]float64, 0, d.MedianWindow)

	for i := 1; i < len(env)-1; i++ {
		// Local maximum test first; the threshold only applies to peaks.
		if env[i] <= env[i-1] || env[i] < env[i+1] {
			continue
		}

		lo := i - d.MedianWindow
		if lo < 0 {
			lo = 0
		}
		window = append(window[:0], env[lo:i]...)
		if env[i] < trailingMedian(window)+d.ThresholdDelta {
			continue
		}

		// Backtrack to the preceding local minimum so the onset lands
		// on the rise start, not the rise peak.
		j := i
		for j > 0 && env[j-1] < env[j] {
			j--
		}

		onsets = append(onsets, Onset{
			Time:     float64(j) * frameTime,
			Strength: env[i],
		})
	}

	return d.enforceSpacing(onsets)
}

// enforceSpacing merges onsets closer than MinSpacing, keeping the
// stronger of each colliding pair.
func (d *Detector) enforceSpacing(onsets []Onset) []Onset {
	if len(onsets) == 0 {
		return onsets
	}
	out := onsets[:1]
	for _, o := range onsets[1:] {
		last := &out[len(out)-1]
		if o.Time-last.Time < d.MinSpacing {
			if o.Strength > last.Strength {
				last.Strength = o.Strength
			}
			continue
		}
		out = append(out, o)
	}
	return out
}

func trailingMedian(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

// Times extracts just the timestamps of an onset sequence.
func Times(onsets []Onset) []float64 {
	times := make([]float64, len(onsets))
	for i, o := range onsets {
		times[i] = o.Time
	}
	return times
}
