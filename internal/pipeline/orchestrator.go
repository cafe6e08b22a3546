// Package pipeline coordinates the full song run: decode, optional
// vocal separation, the three analysis passes, lyric alignment, and
// quantization into the output file. Every per-song object lives in
// the Config/Result pair threaded through one Execute call, so
// parallel songs never share state.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/align"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/audio"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/beat"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/dsp"
	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/exec"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/lyrics"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/midifile"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/onset"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/pitch"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/progress"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/ultrastar"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/workspace"
)

// Config holds per-song pipeline configuration
type Config struct {
	AudioPath      string
	LyricsPath     string
	OutputPath     string // default: audio path with .txt extension
	MIDIOutputPath string // optional SMF export
	ReferencePath  string // optional reference song for timing bias
	DictionaryPath string // optional hyphenation dictionary

	Title  string // default: audio filename stem
	Artist string

	Separate bool // run vocal separation before analysis
	Relaxed  bool // relaxed alignment thresholds (retry mode)

	Resolution  int // file beats per grid beat; 0 means reference/default
	PitchCenter int

	SampleRate      int
	SeparateTimeout time.Duration
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() Config {
	return Config{
		Artist:          "Unknown Artist",
		Separate:        true,
		PitchCenter:     15,
		SampleRate:      dsp.SampleRate,
		SeparateTimeout: 5 * time.Minute,
	}
}

// Degradation records a quality warning accumulated during a run.
// Degradations never abort processing; callers decide how loudly to
// surface them.
type Degradation struct {
	Stage  string
	Detail string
}

// Result contains all pipeline outputs for one song
type Result struct {
	Song       *ultrastar.Song
	OutputPath string
	MIDIPath   string

	BPM           float64
	BPMConfidence float64
	VoicedRatio   float64
	OnsetCount    int
	TokenCount    int
	NoteCount     int
	Resolution    int

	UsedSeparation bool
	Degradations   []Degradation
}

func (r *Result) degrade(stage, format string, args ...any) {
	r.Degradations = append(r.Degradations, Degradation{
		Stage:  stage,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Orchestrator coordinates the full processing pipeline
type Orchestrator struct {
	runner    *exec.Runner
	decoder   *audio.Decoder
	separator *audio.Separator
	progress  *progress.Reporter
}

// NewOrchestrator creates a pipeline orchestrator. Empty tool paths
// fall back to PATH lookup.
func NewOrchestrator(ffmpegPath, pythonPath string, out io.Writer, verbose bool) *Orchestrator {
	runner := exec.NewRunner(ffmpegPath, pythonPath)
	return &Orchestrator{
		runner:    runner,
		decoder:   audio.NewDecoder(runner, dsp.SampleRate),
		separator: audio.NewSeparator(runner),
		progress:  progress.NewReporter(out, verbose),
	}
}

// Execute runs the full pipeline for one song. On cancellation or any
// fatal error no partial song is returned; the Result carries either
// the complete note sequence or nothing.
func (o *Orchestrator) Execute(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = dsp.SampleRate
	}

	// Stage 1: Validate inputs and resolve metadata
	o.progress.StartStage(progress.StageValidate)
	format, err := audio.ValidateInput(cfg.AudioPath)
	if err != nil {
		return nil, err
	}
	lyricsKind, err := audio.ValidateLyrics(cfg.LyricsPath)
	if err != nil {
		return nil, err
	}
	if err := o.runner.CheckTool(o.runner.FFmpegPath); err != nil {
		return nil, err
	}

	tokenizer := &lyrics.Tokenizer{}
	if cfg.DictionaryPath != "" {
		dict, err := lyrics.LoadDictionary(cfg.DictionaryPath)
		if err != nil {
			return nil, err
		}
		tokenizer.Syllabifier = dict
	}
	tokens, err := tokenizer.TokenizeFile(cfg.LyricsPath)
	if err != nil {
		return nil, err
	}
	o.progress.StageComplete("Valid %s audio with %s lyrics, %d tokens", format, lyricsKind, len(tokens))

	result := &Result{TokenCount: len(tokens)}

	timing := ultrastar.DefaultTiming()
	if cfg.ReferencePath != "" {
		timing = ultrastar.InferTiming(cfg.ReferencePath)
		if !timing.Verified {
			result.degrade("reference", "reference file unusable, keeping default timing")
		}
	}
	if cfg.Resolution > 0 {
		timing.Resolution = cfg.Resolution
	}
	result.Resolution = timing.Resolution

	ws, err := workspace.Create()
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer ws.Cleanup()

	// Stage 2: Decode
	o.progress.StartStage(progress.StageDecode)
	mix, err := o.decoder.Decode(ctx, cfg.AudioPath)
	if err != nil {
		return nil, err
	}
	duration := float64(len(mix)) / float64(cfg.SampleRate)
	o.progress.StageComplete("%.1fs of audio at %dHz", duration, cfg.SampleRate)

	// Stage 3: Vocal separation, mixed audio on any failure
	vocal := mix
	o.progress.StartStage(progress.StageSeparate)
	if cfg.Separate {
		sepCtx, cancel := context.WithTimeout(ctx, cfg.SeparateTimeout)
		vocalPath, sepErr := o.separator.SeparateVocals(sepCtx, cfg.AudioPath, ws.SeparatedDir())
		cancel()
		if sepErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.degrade("separation", "vocal separation unavailable, using mixed audio")
			o.progress.Warning("Vocal separation failed, using mixed audio")
		} else {
			vocal, err = o.decoder.Decode(ctx, vocalPath)
			if err != nil {
				return nil, err
			}
			result.UsedSeparation = true
			o.progress.StageComplete("Vocals isolated")
		}
	} else {
		o.progress.StageComplete("Skipped")
	}

	song, err := o.process(ctx, mix, vocal, tokens, cfg, timing, result)
	if err != nil {
		return nil, err
	}
	result.Song = song
	result.NoteCount = len(song.VocalNotes())

	outputPath := cfg.OutputPath
	if outputPath == "" {
		ext := filepath.Ext(cfg.AudioPath)
		outputPath = strings.TrimSuffix(cfg.AudioPath, ext) + ".txt"
	}
	if err := ultrastar.WriteFile(outputPath, song); err != nil {
		return nil, err
	}
	result.OutputPath = outputPath

	if cfg.MIDIOutputPath != "" {
		writer := midifile.NewWriter(timing.Resolution)
		if err := writer.WriteFile(cfg.MIDIOutputPath, song); err != nil {
			return nil, err
		}
		result.MIDIPath = cfg.MIDIOutputPath
	}

	for _, d := range result.Degradations {
		o.progress.Warning("%s: %s", d.Stage, d.Detail)
	}
	return result, nil
}

// process runs the analysis and encoding stages over decoded samples.
// It holds every step that needs no external tool, so tests can feed
// synthetic waveforms straight through it.
func (o *Orchestrator) process(ctx context.Context, mix, vocal []float64, tokens []lyrics.Token, cfg Config, timing *ultrastar.Timing, result *Result) (*ultrastar.Song, error) {
	sr := cfg.SampleRate
	duration := float64(len(mix)) / float64(sr)

	// Stage 4: Pitch tracking
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.progress.StartStage(progress.StagePitch)
	frames := pitch.NewExtractor(sr).Track(vocal)
	result.VoicedRatio = pitch.VoicedRatio(frames)
	if result.VoicedRatio == 0 {
		result.degrade("pitch", "no voiced frames detected, all notes will be freestyle")
	}
	o.progress.StageComplete("%d frames, %.0f%% voiced", len(frames), result.VoicedRatio*100)

	// Stage 5: Beat grid and onsets
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.progress.StartStage(progress.StageRhythm)
	grid := beat.NewEstimator(sr).Estimate(mix)
	result.BPM = grid.Tempo
	result.BPMConfidence = grid.Confidence
	if grid.Fallback {
		result.degrade("beats", "no rhythmic signal, using fixed %.0f BPM grid", grid.Tempo)
	}

	onsets := onset.NewDetector(sr).Detect(vocal)
	result.OnsetCount = len(onsets)
	if len(onsets) == 0 {
		result.degrade("onsets", "no onsets detected, token spans will be evenly spaced")
	}
	o.progress.StageComplete("%.1f BPM (confidence %.0f%%), %d onsets",
		grid.Tempo, grid.Confidence*100, len(onsets))

	// Stage 6: Alignment
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.progress.StartStage(progress.StageAlign)
	engine := align.NewEngine()
	if cfg.Relaxed {
		engine.Relax()
	}
	aligned, err := engine.Align(tokens, onsets, frames, duration)
	if err != nil {
		return nil, fmt.Errorf("alignment: %w", err)
	}
	for _, line := range aligned.ZeroOnsetLines {
		result.degrade("align", "line %d has no onsets, spans spaced evenly", line)
	}
	o.progress.StageComplete("%d note candidates", len(aligned.Candidates))

	// Stage 7: Quantize and encode
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.progress.StartStage(progress.StageEncode)
	quantizer := ultrastar.NewQuantizer()
	quantizer.Resolution = timing.Resolution
	if cfg.PitchCenter != 0 {
		quantizer.PitchCenter = cfg.PitchCenter
	}
	song, err := quantizer.Quantize(aligned.Candidates, grid, o.buildHeader(cfg))
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	o.progress.StageComplete("%d notes across %d lines", len(song.VocalNotes()), song.LineCount())
	return song, nil
}

func (o *Orchestrator) buildHeader(cfg Config) ultrastar.Header {
	title := cfg.Title
	if title == "" {
		base := filepath.Base(cfg.AudioPath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	artist := cfg.Artist
	if artist == "" {
		artist = "Unknown Artist"
	}
	return ultrastar.Header{
		Title:  title,
		Artist: artist,
		MP3:    filepath.Base(cfg.AudioPath),
	}
}

// IsRecoverable reports whether a song failure leaves the rest of a
// batch unaffected.
func IsRecoverable(err error) bool {
	return apperrors.IsRecoverable(err)
}
