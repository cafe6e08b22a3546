// Package beat estimates the tempo and beat grid of a recording from
// its onset-strength envelope.
package beat

import (
	"math"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/dsp"
)

// Grid is the beat structure of one song. BeatTimes are strictly
// increasing seconds; consecutive gaps stay within tolerance of
// 60/Tempo. Fallback marks the fixed-tempo estimate used when the
// audio carries no usable rhythmic signal.
type Grid struct {
	Tempo      float64   `json:"tempo"`
	BeatTimes  []float64 `json:"beat_times"`
	Confidence float64   `json:"confidence"`
	Fallback   bool      `json:"fallback"`
}

// Offset returns the time of the first beat in seconds.
func (g *Grid) Offset() float64 {
	if len(g.BeatTimes) == 0 {
		return 0
	}
	return g.BeatTimes[0]
}

// Estimator holds beat tracking parameters.
type Estimator struct {
	SampleRate int
	FrameSize  int
	HopSize    int

	// MinTempo/MaxTempo bound the reported tempo to the range karaoke
	// files actually use.
	MinTempo float64
	MaxTempo float64

	// Tightness penalizes local deviation from the estimated period in
	// the dynamic-programming tracker.
	Tightness float64

	// SilenceFloor is the envelope level below which the recording is
	// treated as rhythmically empty.
	SilenceFloor float64
}

// NewEstimator returns an estimator with karaoke-range defaults.
func NewEstimator(sampleRate int) *Estimator {
	return &Estimator{
		SampleRate:   sampleRate,
		FrameSize:    dsp.FrameSize,
		HopSize:      dsp.HopSize,
		MinTempo:     60,
		MaxTempo:     250,
		Tightness:    100,
		SilenceFloor: 1e-4,
	}
}

// Estimate derives a beat grid from a mono waveform. A near-silent
// input falls back to a fixed 120 BPM grid anchored at the first
// audible sample, reported with low confidence rather than an error.
func (e *Estimator) Estimate(samples []float64) *Grid {
	stft := dsp.NewSTFT(e.FrameSize, e.HopSize)
	env := dsp.OnsetEnvelope(stft.Magnitudes(samples))

	if peak(env) <= e.SilenceFloor {
		start := firstAudible(samples, e.SampleRate)
		duration := float64(len(samples)) / float64(e.SampleRate)
		return DefaultGrid(start, duration)
	}

	frameRate := float64(e.SampleRate) / float64(e.HopSize)
	tempo, periodStrength := e.estimateTempo(env, frameRate)
	beatFrames := e.trackBeats(env, frameRate, tempo)

	if len(beatFrames) < 2 {
		start := firstAudible(samples, e.SampleRate)
		duration := float64(len(samples)) / float64(e.SampleRate)
		return DefaultGrid(start, duration)
	}

	times := make([]float64, len(beatFrames))
	for i, f := range beatFrames {
		times[i] = float64(f) * float64(e.HopSize) / float64(e.SampleRate)
	}

	// Re-derive the tempo from the tracked beats so the grid invariant
	// (gap ≈ 60/tempo) holds by construction.
	tempo = 60 / medianInterval(times)

	return &Grid{
		Tempo:      tempo,
		BeatTimes:  times,
		Confidence: e.confidence(env, beatFrames, periodStrength),
		Fallback:   false,
	}
}

// DefaultGrid returns the fixed 120 BPM fallback grid spanning
// [start, duration] seconds.
func DefaultGrid(start, duration float64) *Grid {
	const tempo = 120.0
	interval := 60.0 / tempo

	var times []float64
	for t := start; t < duration; t += interval {
		times = append(times, t)
	}
	if len(times) == 0 {
		times = []float64{start}
	}
	return &Grid{
		Tempo:      tempo,
		BeatTimes:  times,
		Confidence: 0.1,
		Fallback:   true,
	}
}

// estimateTempo finds the dominant periodicity of the envelope via
// autocorrelation, weighted by a log-normal prior around 120 BPM, then
// folds the result into the singable range by octave multiples.
func (e *Estimator) estimateTempo(env []float64, frameRate float64) (float64, float64) {
	minLag := int(60 * frameRate / e.MaxTempo)
	maxLag := int(math.Ceil(60 * frameRate / e.MinTempo))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(env) {
		maxLag = len(env) - 1
	}
	if maxLag <= minLag {
		return 120, 0
	}

	ac := dsp.Autocorrelate(env, maxLag)

	bestLag := minLag
	bestScore := math.Inf(-1)
	for lag := minLag; lag <= maxLag; lag++ {
		t := 60 * frameRate / float64(lag)
		score := ac[lag] * tempoPrior(t)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	raw := 60 * frameRate / float64(bestLag)
	strength := 0.0
	if ac[0] > 0 {
		strength = ac[bestLag] / ac[0]
	}
	return e.foldTempo(raw), strength
}

// foldTempo picks the octave multiple of raw that lands inside the
// allowed range, preferring the one nearest the 120 BPM prior.
func (e *Estimator) foldTempo(raw float64) float64 {
	best := raw
	bestDist := math.Inf(1)
	for _, mult := range []float64{0.25, 0.5, 1, 2, 4} {
		t := raw * mult
		if t < e.MinTempo || t > e.MaxTempo {
			continue
		}
		dist := math.Abs(math.Log2(t / 120))
		if dist < bestDist {
			bestDist = dist
			best = t
		}
	}
	if best < e.MinTempo {
		best = e.MinTempo
	}
	if best > e.MaxTempo {
		best = e.MaxTempo
	}
	return best
}

// tempoPrior is a log-normal weight centered on 120 BPM.
func tempoPrior(t float64) float64 {
	x := math.Log2(t / 120)
	return math.Exp(-0.5 * x * x)
}

// trackBeats runs the dynamic-programming beat tracker: each frame
// accumulates the envelope reward plus the best predecessor score
// under a log-squared deviation penalty from the target period.
func (e *Estimator) trackBeats(env []float64, frameRate, tempo float64) []int {
	period := 60 * frameRate / tempo
	n := len(env)
	if n == 0 || period <= 0 {
		return nil
	}

	score := make([]float64, n)
	backlink := make([]int, n)
	for i := range backlink {
		backlink[i] = -1
	}

	windowLo := int(math.Round(period / 2))
	windowHi := int(math.Round(period * 2))
	if windowLo < 1 {
		windowLo = 1
	}

	for i := 0; i < n; i++ {
		score[i] = env[i]
		bestPrev := math.Inf(-1)
		bestJ := -1
		// Scan predecessors earliest-first so ties anchor the chain as
		// early as possible.
		for gap := windowHi; gap >= windowLo; gap-- {
			j := i - gap
			if j < 0 {
				continue
			}
			dev := math.Log(float64(gap) / period)
			cand := score[j] - e.Tightness*dev*dev
			if cand > bestPrev {
				bestPrev = cand
				bestJ = j
			}
		}
		if bestJ >= 0 && bestPrev > 0 {
			score[i] += bestPrev
			backlink[i] = bestJ
		}
	}

	// Start the backtrace at the best-scoring frame; scanning forward
	// with strict comparison keeps the earliest on ties.
	best := 0
	for i := 1; i < n; i++ {
		if score[i] > score[best] {
			best = i
		}
	}

	var frames []int
	for i := best; i >= 0; i = backlink[i] {
		frames = append(frames, i)
		if backlink[i] < 0 {
			break
		}
	}
	reverse(frames)
	return frames
}

// confidence blends periodicity strength with how much envelope energy
// the tracked beats actually capture.
func (e *Estimator) confidence(env []float64, beatFrames []int, periodStrength float64) float64 {
	var envMean float64
	for _, v := range env {
		envMean += v
	}
	envMean /= float64(len(env))

	var beatMean float64
	for _, f := range beatFrames {
		beatMean += env[f]
	}
	beatMean /= float64(len(beatFrames))

	capture := 0.0
	if envMean > 0 {
		capture = beatMean / (2 * envMean)
		if capture > 1 {
			capture = 1
		}
	}

	conf := 0.5*periodStrength + 0.5*capture
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

func medianInterval(times []float64) float64 {
	if len(times) < 2 {
		return 0.5
	}
	gaps := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps[i-1] = times[i] - times[i-1]
	}
	// median by selection; the slice is short
	for i := 1; i < len(gaps); i++ {
		for j := i; j > 0 && gaps[j-1] > gaps[j]; j-- {
			gaps[j-1], gaps[j] = gaps[j], gaps[j-1]
		}
	}
	m := gaps[len(gaps)/2]
	if m <= 0 {
		return 0.5
	}
	return m
}

// firstAudible returns the time of the first sample above the noise
// floor, or 0 for fully silent audio.
func firstAudible(samples []float64, sampleRate int) float64 {
	for i, v := range samples {
		if math.Abs(v) > 1e-3 {
			return float64(i) / float64(sampleRate)
		}
	}
	return 0
}

func peak(x []float64) float64 {
	var p float64
	for _, v := range x {
		if v > p {
			p = v
		}
	}
	return p
}

func reverse(x []int) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
