// Package pitch extracts a frame-wise fundamental frequency contour
// from a vocal waveform using a probabilistic YIN-style tracker.
package pitch

import "sort"

// Frame is one pitch observation. Frequency is 0 for unvoiced frames.
type Frame struct {
	Time       float64 `json:"time"`
	Frequency  float64 `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

// Voiced reports whether the frame carries a usable pitch estimate.
func (f Frame) Voiced() bool {
	return f.Frequency > 0
}

// Extractor holds tracker parameters. The zero value is not usable;
// construct with NewExtractor.
type Extractor struct {
	SampleRate int
	FrameSize  int
	HopSize    int

	// FMin/FMax bound the candidate search to the singing voice.
	FMin float64
	FMax float64

	// VoicedThreshold is the minimum posterior confidence below which
	// a frame is reported unvoiced.
	VoicedThreshold float64
}

// NewExtractor returns an extractor with vocal-range defaults.
func NewExtractor(sampleRate int) *Extractor {
	return &Extractor{
		SampleRate:      sampleRate,
		FrameSize:       2048,
		HopSize:         512,
		FMin:            80,
		FMax:            800,
		VoicedThreshold: 0.15,
	}
}

// Threshold ladder for trough selection. Lower thresholds carry more
// prior mass, mirroring the pYIN assumption that clean periodicity
// shows up as deep minima.
var yinThresholds = []float64{0.05, 0.10, 0.15, 0.20, 0.25, 0.30, 0.35, 0.40, 0.45, 0.50}

// Track analyzes a mono waveform and returns one Frame per hop.
// Silence and noise yield unvoiced frames, never an error. The tracker
// is fully deterministic.
func (e *Extractor) Track(samples []float64) []Frame {
	half := e.FrameSize / 2
	tauMin := int(float64(e.SampleRate) / e.FMax)
	tauMax := int(float64(e.SampleRate) / e.FMin)
	if tauMin < 2 {
		tauMin = 2
	}
	if tauMax > half-1 {
		tauMax = half - 1
	}

	priors := thresholdPriors()

	numFrames := 0
	if len(samples) >= e.FrameSize {
		numFrames = 1 + (len(samples)-e.FrameSize)/e.HopSize
	}

	frames := make([]Frame, 0, numFrames)
	diff := make([]float64, tauMax+1)
	cmndf := make([]float64, tauMax+1)

	for i := 0; i < numFrames; i++ {
		start := i * e.HopSize
		window := samples[start : start+e.FrameSize]

		f := Frame{Time: float64(start) / float64(e.SampleRate)}

		e.difference(window, half, tauMax, diff)
		cumulativeMeanNormalize(diff, cmndf)

		freq, conf := e.selectCandidate(cmndf, tauMin, tauMax, priors)
		if conf >= e.VoicedThreshold && freq >= e.FMin && freq <= e.FMax {
			f.Frequency = freq
			f.Confidence = conf
		}
		frames = append(frames, f)
	}
	return frames
}

// difference fills d with the YIN difference function over lags 0..tauMax.
func (e *Extractor) difference(window []float64, half, tauMax int, d []float64) {
	for tau := 0; tau <= tauMax; tau++ {
		var sum float64
		for j := 0; j < half; j++ {
			delta := window[j] - window[j+tau]
			sum += delta * delta
		}
		d[tau] = sum
	}
}

// cumulativeMeanNormalize computes the normalized difference function.
// Lag 0 is defined as 1; an all-zero (silent) frame normalizes to 1
// everywhere so no trough can pass a threshold.
func cumulativeMeanNormalize(d, out []float64) {
	out[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		if running == 0 {
			out[tau] = 1
			continue
		}
		out[tau] = d[tau] * float64(tau) / running
	}
}

// selectCandidate runs the probabilistic trough selection: each
// threshold votes for the first local minimum below it, votes weighted
// by the threshold prior. The maximum-a-posteriori candidate wins.
func (e *Extractor) selectCandidate(cmndf []float64, tauMin, tauMax int, priors []float64) (float64, float64) {
	type candidate struct {
		tau  int
		mass float64
	}
	var candidates []candidate

	addMass := func(tau int, mass float64) {
		for i := range candidates {
			if candidates[i].tau == tau {
				candidates[i].mass += mass
				return
			}
		}
		candidates = append(candidates, candidate{tau: tau, mass: mass})
	}

	var totalMass float64
	for k, threshold := range yinThresholds {
		tau := firstTroughBelow(cmndf, tauMin, tauMax, threshold)
		if tau < 0 {
			continue
		}
		addMass(tau, priors[k])
		totalMass += priors[k]
	}

	if len(candidates) == 0 {
		return 0, 0
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.mass > best.mass {
			best = c
		}
	}

	period := refineTrough(cmndf, best.tau)
	freq := float64(e.SampleRate) / period
	conf := totalMass * (1 - cmndf[best.tau])
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return freq, conf
}

// firstTroughBelow returns the first local minimum of cmndf in
// [tauMin, tauMax] whose depth is below threshold, or -1.
func firstTroughBelow(cmndf []float64, tauMin, tauMax int, threshold float64) int {
	for tau := tauMin; tau <= tauMax; tau++ {
		if cmndf[tau] >= threshold {
			continue
		}
		if cmndf[tau] <= cmndf[tau-1] && (tau == tauMax || cmndf[tau] <= cmndf[tau+1]) {
			return tau
		}
	}
	return -1
}

// refineTrough improves the integer lag by parabolic interpolation
// over the trough and its neighbors.
func refineTrough(cmndf []float64, tau int) float64 {
	if tau <= 0 || tau >= len(cmndf)-1 {
		return float64(tau)
	}
	a := cmndf[tau-1]
	b := cmndf[tau]
	c := cmndf[tau+1]
	denom := a - 2*b + c
	if denom == 0 {
		return float64(tau)
	}
	shift := 0.5 * (a - c) / denom
	if shift > 0.5 {
		shift = 0.5
	}
	if shift < -0.5 {
		shift = -0.5
	}
	return float64(tau) + shift
}

// thresholdPriors returns normalized weights over the threshold
// ladder, favoring deep troughs.
func thresholdPriors() []float64 {
	w := make([]float64, len(yinThresholds))
	var sum float64
	for i, s := range yinThresholds {
		w[i] = 1 - s
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// VoicedRatio returns the fraction of frames carrying a pitch.
func VoicedRatio(frames []Frame) float64 {
	if len(frames) == 0 {
		return 0
	}
	voiced := 0
	for _, f := range frames {
		if f.Voiced() {
			voiced++
		}
	}
	return float64(voiced) / float64(len(frames))
}

// MedianFrequency returns the median voiced frequency, or 0 when the
// track is entirely unvoiced.
func MedianFrequency(frames []Frame) float64 {
	var voiced []float64
	for _, f := range frames {
		if f.Voiced() {
			voiced = append(voiced, f.Frequency)
		}
	}
	if len(voiced) == 0 {
		return 0
	}
	sort.Float64s(voiced)
	return voiced[len(voiced)/2]
}
