package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/align"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/dsp"
	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/lyrics"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/ultrastar"
)

func testTokens(t *testing.T, text string) []lyrics.Token {
	t.Helper()
	tok := &lyrics.Tokenizer{}
	tokens, err := tok.Tokenize(text)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	return tokens
}

func toneSamples(seconds float64, freq float64) []float64 {
	n := int(seconds * dsp.SampleRate)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/dsp.SampleRate)
	}
	return samples
}

func TestProcessSilentAudio(t *testing.T) {
	// A silent recording with real lyrics must still produce a full
	// song: fallback grid, evenly spaced freestyle notes, warnings
	// instead of errors.
	silent := make([]float64, 5*dsp.SampleRate)
	tokens := testTokens(t, "hello world again\nsecond line here")

	orch := NewOrchestrator("", "", io.Discard, false)
	cfg := DefaultConfig()
	result := &Result{TokenCount: len(tokens)}

	song, err := orch.process(context.Background(), silent, silent, tokens, cfg, ultrastar.DefaultTiming(), result)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if song.Header.BPM != 120 {
		t.Errorf("fallback BPM = %.1f, want 120", song.Header.BPM)
	}
	if got := len(song.VocalNotes()); got != len(tokens) {
		t.Errorf("notes = %d, want one per token (%d)", got, len(tokens))
	}
	if len(result.Degradations) == 0 {
		t.Error("silent audio should report degradations")
	}

	stages := map[string]bool{}
	for _, d := range result.Degradations {
		stages[d.Stage] = true
	}
	for _, want := range []string{"pitch", "beats", "onsets"} {
		if !stages[want] {
			t.Errorf("missing %q degradation, got %v", want, result.Degradations)
		}
	}

	prev := -1
	for _, n := range song.Notes {
		if n.Type == ultrastar.LineBreak {
			continue
		}
		if n.StartBeat < prev {
			t.Fatalf("start beats regress: %d after %d", n.StartBeat, prev)
		}
		if n.LengthBeats < 1 {
			t.Fatalf("note length %d < 1", n.LengthBeats)
		}
		if n.Type != ultrastar.Freestyle {
			t.Errorf("silent audio produced pitched note %+v", n)
		}
		prev = n.StartBeat
	}
}

func TestProcessIdempotent(t *testing.T) {
	tone := toneSamples(4, 440)
	tokens := testTokens(t, "la la la la")

	orch := NewOrchestrator("", "", io.Discard, false)
	cfg := DefaultConfig()
	timing := ultrastar.DefaultTiming()

	encode := func() []byte {
		result := &Result{}
		song, err := orch.process(context.Background(), tone, tone, tokens, cfg, timing, result)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		var buf bytes.Buffer
		if err := ultrastar.Encode(&buf, song); err != nil {
			t.Fatalf("encode: %v", err)
		}
		return buf.Bytes()
	}

	first := encode()
	second := encode()
	if !bytes.Equal(first, second) {
		t.Error("identical input produced different output")
	}
}

func TestProcessConstantToneSamePitch(t *testing.T) {
	// All voiced candidates over one steady tone must land on the
	// same re-centered pitch.
	tone := toneSamples(4, 440)
	tokens := testTokens(t, "one two three four")

	orch := NewOrchestrator("", "", io.Discard, false)
	result := &Result{}
	song, err := orch.process(context.Background(), tone, tone, tokens, DefaultConfig(), ultrastar.DefaultTiming(), result)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	var pitches []int
	for _, n := range song.VocalNotes() {
		if n.Type == ultrastar.Freestyle {
			continue
		}
		pitches = append(pitches, n.Pitch)
	}
	if len(pitches) == 0 {
		t.Fatal("no pitched notes over a steady tone")
	}
	for _, p := range pitches[1:] {
		if p != pitches[0] {
			t.Errorf("pitches differ across constant tone: %v", pitches)
			break
		}
	}
}

func TestDiscoverPairs(t *testing.T) {
	dir := t.TempDir()
	files := []string{"a.wav", "a.txt", "b.mp3", "b.lrc", "c.wav", "notes.md"}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	pairs, err := DiscoverPairs(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2 (%v)", len(pairs), pairs)
	}
	if pairs[0].Name != "a" || pairs[1].Name != "b" {
		t.Errorf("unexpected pair order: %v", pairs)
	}
	if filepath.Ext(pairs[1].LyricsPath) != ".lrc" {
		t.Errorf("b should pair with its .lrc file, got %s", pairs[1].LyricsPath)
	}
}

func TestBatchCancelledProducesNoPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pairs := []Pair{
		{Name: "x", AudioPath: "/nonexistent/x.wav", LyricsPath: "/nonexistent/x.txt"},
		{Name: "y", AudioPath: "/nonexistent/y.wav", LyricsPath: "/nonexistent/y.txt"},
	}
	b := &Batch{Workers: 2}
	outcomes := b.Run(ctx, pairs, DefaultConfig())

	if len(outcomes) != len(pairs) {
		t.Fatalf("outcomes = %d, want %d", len(outcomes), len(pairs))
	}
	for _, o := range outcomes {
		if o.Err == nil {
			t.Errorf("cancelled song %s reported success", o.Pair.Name)
		}
		if o.Result != nil && o.Err != nil && o.Result.Song != nil {
			t.Errorf("cancelled song %s exposed a partial note sequence", o.Pair.Name)
		}
	}
}

func TestBatchIsolatesFailingSongs(t *testing.T) {
	// One bad song must not keep its siblings from being attempted:
	// every pair gets its own outcome carrying its own error. The two
	// songs here fail at different validation steps, so distinct
	// errors prove each ran independently.
	dir := t.TempDir()
	write := func(name string, data []byte) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("alpha.wav", nil) // unreadable header
	write("alpha.txt", []byte("la la la\n"))
	write("beta.wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt ")) // valid container
	write("beta.txt", nil)                                    // empty transcript

	pairs, err := DiscoverPairs(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}

	b := &Batch{Workers: 2}
	outcomes := b.Run(context.Background(), pairs, DefaultConfig())

	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if !errors.Is(outcomes[0].Err, apperrors.ErrCorruptedFile) {
		t.Errorf("alpha error = %v, want ErrCorruptedFile", outcomes[0].Err)
	}
	if !errors.Is(outcomes[1].Err, apperrors.ErrEmptyLyrics) {
		t.Errorf("beta error = %v, want ErrEmptyLyrics", outcomes[1].Err)
	}
	for _, o := range outcomes {
		if o.Result != nil {
			t.Errorf("failed song %s still produced a result", o.Pair.Name)
		}
		// Bad input is terminal; a relaxed retry cannot help it.
		if IsRecoverable(o.Err) {
			t.Errorf("song %s: input error reported as recoverable", o.Pair.Name)
		}
	}

	// Alignment infeasibility is the failure a batch driver may retry.
	infeasible := fmt.Errorf("alignment: %w", &align.InfeasibleError{Tokens: 40, Onsets: 2})
	if !IsRecoverable(infeasible) {
		t.Error("wrapped infeasible alignment should be recoverable")
	}
}
