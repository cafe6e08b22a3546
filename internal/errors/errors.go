package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure modes
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptedFile     = errors.New("file corrupted or unreadable")
	ErrFileTooLarge      = errors.New("file exceeds size limit")
	ErrEmptyLyrics       = errors.New("lyric text is empty")
	ErrTimeout           = errors.New("operation timed out")
	ErrToolNotInstalled  = errors.New("required tool not installed")
)

// PipelineError represents a failure in an external tool or pipeline stage
type PipelineError struct {
	Tool     string // "ffmpeg", "demucs", "ffprobe"
	Stage    string // "decode", "separation", "alignment", "encode"
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed at %s (exit %d): %s", e.Tool, e.Stage, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed at %s (exit %d)", e.Tool, e.Stage, e.ExitCode)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// IsRecoverable returns true if a fallback strategy exists
func (e *PipelineError) IsRecoverable() bool {
	return e.Tool == "demucs" && e.Stage == "separation"
}

// NewPipelineError creates a PipelineError
func NewPipelineError(tool, stage string, exitCode int, stderr string, cause error) *PipelineError {
	return &PipelineError{
		Tool:     tool,
		Stage:    stage,
		ExitCode: exitCode,
		Stderr:   stderr,
		Cause:    cause,
	}
}

// recoverable is implemented by errors that abort one song without
// poisoning the rest of a batch.
type recoverable interface {
	IsRecoverable() bool
}

// IsRecoverable reports whether err (or anything it wraps) allows the
// caller to retry or continue with other songs.
func IsRecoverable(err error) bool {
	for err != nil {
		if r, ok := err.(recoverable); ok {
			return r.IsRecoverable()
		}
		err = errors.Unwrap(err)
	}
	return false
}
