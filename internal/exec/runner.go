package exec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
)

// Result holds command execution output
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes the external audio tools with context support
type Runner struct {
	FFmpegPath  string
	FFprobePath string
	PythonPath  string
}

// NewRunner creates a runner with the given tool paths. Empty paths
// fall back to PATH lookup names.
func NewRunner(ffmpegPath, pythonPath string) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}
	return &Runner{
		FFmpegPath:  ffmpegPath,
		FFprobePath: "ffprobe",
		PythonPath:  pythonPath,
	}
}

// CheckTool verifies a tool binary is reachable before the pipeline
// starts, so missing installs surface as input errors.
func (r *Runner) CheckTool(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrToolNotInstalled, name)
	}
	return nil
}

// RunFFmpeg executes ffmpeg and returns raw stdout bytes, for decode
// pipelines that stream PCM through stdout.
func (r *Runner) RunFFmpeg(ctx context.Context, args ...string) ([]byte, *Result, error) {
	cmd := exec.CommandContext(ctx, r.FFmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, result, ctx.Err()
		}
		return nil, result, fmt.Errorf("ffmpeg failed: %w", err)
	}
	return stdout.Bytes(), result, nil
}

// RunFFprobe executes ffprobe and returns its stdout text.
func (r *Runner) RunFFprobe(ctx context.Context, args ...string) (*Result, error) {
	return r.execute(ctx, r.FFprobePath, args...)
}

// RunPythonModule executes a Python module with -m, used for demucs.
func (r *Runner) RunPythonModule(ctx context.Context, module string, args ...string) (*Result, error) {
	fullArgs := append([]string{"-m", module}, args...)
	result, err := r.execute(ctx, r.PythonPath, fullArgs...)
	if err != nil {
		return result, fmt.Errorf("module %s failed: %w", module, err)
	}
	return result, nil
}

// execute runs a command and captures output
func (r *Runner) execute(ctx context.Context, name string, args ...string) (*Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = os.Environ()

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("command failed: %w", err)
	}

	return result, nil
}
