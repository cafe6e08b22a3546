// Package dsp provides the low-level spectral primitives the analysis
// stages are built on: windowed STFT magnitudes, an onset-strength
// envelope, and small helpers over sample buffers.
package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Analysis defaults, chosen for sung vocals at 22.05kHz.
const (
	SampleRate = 22050
	FrameSize  = 2048
	HopSize    = 512
)

// STFT is a reusable short-time Fourier transform plan.
type STFT struct {
	n    int
	hop  int
	win  []float64
	fft  *fourier.FFT
	bins int
}

// NewSTFT creates a plan for frame size n and hop size hop.
func NewSTFT(n, hop int) *STFT {
	return &STFT{
		n:    n,
		hop:  hop,
		win:  HannWindow(n),
		fft:  fourier.NewFFT(n),
		bins: n/2 + 1,
	}
}

// NumFrames returns how many frames Magnitudes produces for len samples.
func (s *STFT) NumFrames(samples int) int {
	if samples < s.n {
		if samples > 0 {
			return 1
		}
		return 0
	}
	return 1 + (samples-s.n)/s.hop
}

// FrameTime returns the time in seconds of frame index i.
func (s *STFT) FrameTime(i int, sampleRate int) float64 {
	return float64(i*s.hop) / float64(sampleRate)
}

// Magnitudes computes the magnitude spectrogram: one row per frame,
// n/2+1 bins per row. Short tails are zero-padded.
func (s *STFT) Magnitudes(x []float64) [][]float64 {
	frames := s.NumFrames(len(x))
	mags := make([][]float64, frames)
	buf := make([]float64, s.n)
	for i := 0; i < frames; i++ {
		start := i * s.hop
		for k := 0; k < s.n; k++ {
			if start+k < len(x) {
				buf[k] = x[start+k] * s.win[k]
			} else {
				buf[k] = 0
			}
		}
		coeffs := s.fft.Coefficients(nil, buf)
		row := make([]float64, s.bins)
		for b := 0; b < s.bins; b++ {
			re := real(coeffs[b])
			im := imag(coeffs[b])
			row[b] = math.Hypot(re, im)
		}
		mags[i] = row
	}
	return mags
}

// HannWindow returns an n-point Hann window.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// OnsetEnvelope computes a spectral-flux novelty curve from a magnitude
// spectrogram: per frame, the positive magnitude increase summed across
// bins, on a log-compressed scale. One value per frame; frame 0 is zero.
func OnsetEnvelope(mags [][]float64) []float64 {
	env := make([]float64, len(mags))
	for i := 1; i < len(mags); i++ {
		var flux float64
		prev := mags[i-1]
		cur := mags[i]
		for b := range cur {
			d := math.Log1p(cur[b]) - math.Log1p(prev[b])
			if d > 0 {
				flux += d
			}
		}
		env[i] = flux
	}
	return env
}

// Autocorrelate returns the autocorrelation of x for lags 0..maxLag.
func Autocorrelate(x []float64, maxLag int) []float64 {
	if maxLag >= len(x) {
		maxLag = len(x) - 1
	}
	if maxLag < 0 {
		return nil
	}
	ac := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i+lag < len(x); i++ {
			sum += x[i] * x[i+lag]
		}
		ac[lag] = sum
	}
	return ac
}

// RMS returns the root-mean-square level of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// Normalize scales x in place so the peak magnitude is 1. Silent
// buffers are left untouched.
func Normalize(x []float64) {
	var peak float64
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i := range x {
		x[i] /= peak
	}
}

// WeightedMedian returns the value at the weighted midpoint of values.
// Weights must be non-negative; zero total weight falls back to the
// plain median. Inputs are not modified.
func WeightedMedian(values, weights []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	vs := make([]float64, len(values))
	copy(vs, values)
	ws := make([]float64, len(values))
	var total float64
	for i := range vs {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		ws[i] = w
		total += w
	}
	sort.Sort(&byValue{vs, ws})
	if total == 0 {
		return stat.Quantile(0.5, stat.Empirical, vs, nil)
	}
	return stat.Quantile(0.5, stat.Empirical, vs, ws)
}

// byValue sorts a value slice and keeps its weights in step.
type byValue struct{ v, w []float64 }

func (s *byValue) Len() int           { return len(s.v) }
func (s *byValue) Less(i, j int) bool { return s.v[i] < s.v[j] }
func (s *byValue) Swap(i, j int) {
	s.v[i], s.v[j] = s.v[j], s.v[i]
	s.w[i], s.w[j] = s.w[j], s.w[i]
}
