package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/exec"
)

// Separator isolates the vocal stem using Demucs. The model is
// opaque; callers fall back to the mixed audio when it fails.
type Separator struct {
	runner *exec.Runner

	// Model is the demucs model name passed with -n.
	Model string
}

// NewSeparator creates a vocal separator
func NewSeparator(runner *exec.Runner) *Separator {
	return &Separator{runner: runner, Model: "htdemucs"}
}

// Available reports whether demucs can be imported at all, so the
// pipeline can skip the stage up front instead of waiting on a
// doomed model load.
func (s *Separator) Available(ctx context.Context) bool {
	_, err := s.runner.RunPythonModule(ctx, "demucs", "--help")
	return err == nil
}

// SeparateVocals runs two-stems separation and returns the path to
// the isolated vocal track. Failure is recoverable: the caller keeps
// the mixed waveform.
func (s *Separator) SeparateVocals(ctx context.Context, inputPath, outputDir string) (string, error) {
	result, err := s.runner.RunPythonModule(ctx, "demucs",
		"--two-stems", "vocals",
		"-n", s.Model,
		"-o", outputDir,
		inputPath,
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		exitCode := 0
		stderr := ""
		if result != nil {
			exitCode = result.ExitCode
			stderr = result.Stderr
		}
		return "", apperrors.NewPipelineError("demucs", "separation", exitCode, stderr, err)
	}

	// Demucs writes <outputDir>/<model>/<track>/vocals.wav; probe the
	// known layouts rather than trusting one version's convention.
	track := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	candidates := []string{
		filepath.Join(outputDir, s.Model, track, "vocals.wav"),
		filepath.Join(outputDir, s.Model, track, "vocals.mp3"),
		filepath.Join(outputDir, track, "vocals.wav"),
		filepath.Join(outputDir, "vocals.wav"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", apperrors.NewPipelineError("demucs", "separation", 0,
		"no vocals stem found in "+outputDir, nil)
}
