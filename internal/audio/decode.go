package audio

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/exec"
)

// Decoder converts audio files to the mono analysis sample rate via
// ffmpeg. All downstream DSP consumes its output.
type Decoder struct {
	runner     *exec.Runner
	SampleRate int
}

// NewDecoder creates a decoder at the given analysis sample rate.
func NewDecoder(runner *exec.Runner, sampleRate int) *Decoder {
	return &Decoder{runner: runner, SampleRate: sampleRate}
}

// Decode reads an audio file and returns mono float64 samples.
// Stereo inputs are downmixed by ffmpeg.
func (d *Decoder) Decode(ctx context.Context, path string) ([]float64, error) {
	raw, result, err := d.runner.RunFFmpeg(ctx,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(d.SampleRate),
		"-f", "f32le",
		"pipe:1",
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		stderr := ""
		exitCode := 0
		if result != nil {
			stderr = result.Stderr
			exitCode = result.ExitCode
		}
		return nil, apperrors.NewPipelineError("ffmpeg", "decode", exitCode, stderr, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: decoded no audio data", apperrors.ErrCorruptedFile)
	}

	samples := make([]float64, len(raw)/4)
	for i := range samples {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples, nil
}

// Duration probes the audio length in seconds without decoding it.
func (d *Decoder) Duration(ctx context.Context, path string) (float64, error) {
	result, err := d.runner.RunFFprobe(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable duration %q", apperrors.ErrCorruptedFile, result.Stdout)
	}
	return dur, nil
}
