package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
)

const (
	// MaxAudioSize caps input audio; anything larger is not a single song.
	MaxAudioSize = 100 << 20
	// MaxLyricsSize caps the transcript; real lyric files are tiny.
	MaxLyricsSize = 1 << 20
)

// Format is the sniffed container of an input audio file.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatUnknown Format = "unknown"
)

// LyricsKind distinguishes a plain transcript from timed LRC input.
type LyricsKind string

const (
	LyricsPlain LyricsKind = "txt"
	LyricsLRC   LyricsKind = "lrc"
)

// ValidateInput checks an audio file before any external tool touches
// it. The container is sniffed from the file header rather than the
// extension, so a renamed file fails here instead of deep inside
// ffmpeg with a cryptic exit code.
func ValidateInput(path string) (Format, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return FormatUnknown, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, path)
	}
	if err != nil {
		return FormatUnknown, fmt.Errorf("stat audio: %w", err)
	}
	if info.Size() > MaxAudioSize {
		return FormatUnknown, fmt.Errorf("%w: audio larger than 100MB", apperrors.ErrFileTooLarge)
	}

	format, err := sniffFormat(path)
	if err != nil {
		return FormatUnknown, err
	}
	if format == FormatUnknown {
		return FormatUnknown, fmt.Errorf("%w: need a WAV or MP3 file", apperrors.ErrUnsupportedFormat)
	}
	return format, nil
}

// ValidateLyrics checks a transcript file before tokenization: it must
// exist, carry a .txt or .lrc extension, and contain more than
// whitespace-free emptiness. Transcripts that pass here can still turn
// out unsingable; the tokenizer reports that.
func ValidateLyrics(path string) (LyricsKind, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("stat lyrics: %w", err)
	}

	kind := LyricsPlain
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
	case ".lrc":
		kind = LyricsLRC
	default:
		return "", fmt.Errorf("%w: lyrics must be a .txt or .lrc file", apperrors.ErrUnsupportedFormat)
	}

	if info.Size() > MaxLyricsSize {
		return "", fmt.Errorf("%w: transcript larger than 1MB", apperrors.ErrFileTooLarge)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: %s", apperrors.ErrEmptyLyrics, path)
	}
	return kind, nil
}

var (
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
	id3Magic  = []byte("ID3")
)

// sniffFormat reads the first bytes of the file and matches them
// against the WAV RIFF chunk, an ID3 tag, or a bare MPEG frame sync.
// When the header is inconclusive the extension decides; ffmpeg copes
// with more containers than this sniff knows about.
func sniffFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: %v", apperrors.ErrCorruptedFile, err)
	}
	defer f.Close()

	header := make([]byte, 12)
	n, _ := io.ReadFull(f, header)
	if n < 4 {
		return FormatUnknown, fmt.Errorf("%w: file header too short", apperrors.ErrCorruptedFile)
	}
	header = header[:n]

	switch {
	case n >= 12 && bytes.Equal(header[:4], riffMagic) && bytes.Equal(header[8:12], waveMagic):
		return FormatWAV, nil
	case bytes.HasPrefix(header, id3Magic):
		return FormatMP3, nil
	case header[0] == 0xFF && header[1]&0xE0 == 0xE0: // MPEG frame sync
		return FormatMP3, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return FormatWAV, nil
	case ".mp3":
		return FormatMP3, nil
	}
	return FormatUnknown, nil
}
