package ultrastar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceSong(bpm float64, beatDiff int) *Song {
	return &Song{
		Header: Header{
			BPM:   bpm,
			GapMS: 18680,
			Tags:  map[string]string{"BPM": "x", "GAP": "18680"},
		},
		Notes: []Note{
			{Type: Normal, StartBeat: 0, LengthBeats: 2, Pitch: 10, Text: "a"},
			{Type: Normal, StartBeat: beatDiff, LengthBeats: 2, Pitch: 12, Text: "b"},
		},
	}
}

func TestTimingFromSongPicksFirstPlausibleFactor(t *testing.T) {
	// 3 beats at 264 BPM is ~682ms under factor 1.
	timing := TimingFromSong(referenceSong(264, 3))
	assert.True(t, timing.Verified)
	assert.Equal(t, 1, timing.Resolution)
	assert.Equal(t, 264.0, timing.BPM)
	assert.Equal(t, 18680, timing.GapMS)

	// 12 beats only becomes a plausible syllable at factor 4.
	timing = TimingFromSong(referenceSong(264, 12))
	assert.True(t, timing.Verified)
	assert.Equal(t, 4, timing.Resolution)

	// 24 beats needs factor 8.
	timing = TimingFromSong(referenceSong(264, 24))
	assert.Equal(t, 8, timing.Resolution)
}

func TestTimingFromSongImplausibleKeepsDefault(t *testing.T) {
	// 200 beats is implausible under every factor; the reference is
	// still considered verified.
	timing := TimingFromSong(referenceSong(264, 200))
	assert.True(t, timing.Verified)
	assert.Equal(t, 4, timing.Resolution)
}

func TestTimingFromSongRequiresHeaderFields(t *testing.T) {
	song := referenceSong(264, 3)
	song.Header.BPM = 0
	assert.False(t, TimingFromSong(song).Verified)

	song = referenceSong(264, 3)
	delete(song.Header.Tags, "GAP")
	assert.False(t, TimingFromSong(song).Verified)

	song = referenceSong(264, 3)
	song.Notes = nil
	assert.False(t, TimingFromSong(song).Verified)
}

func TestTimingFromSongSingleNote(t *testing.T) {
	song := referenceSong(264, 3)
	song.Notes = song.Notes[:1]

	timing := TimingFromSong(song)
	assert.True(t, timing.Verified)
	assert.Equal(t, 4, timing.Resolution)
}

func TestInferTimingMissingFile(t *testing.T) {
	timing := InferTiming(filepath.Join(t.TempDir(), "nope.txt"))
	assert.False(t, timing.Verified)
	assert.Equal(t, 4, timing.Resolution)
}

func TestInferTimingFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.txt")
	content := "#TITLE:Ref\n#BPM:264.0\n#GAP:18680\n\n: 0 2 10 a\n: 12 2 12 b\nE\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	timing := InferTiming(path)
	assert.True(t, timing.Verified)
	assert.Equal(t, 4, timing.Resolution)
	assert.Equal(t, 264.0, timing.BPM)
	assert.Equal(t, 18680, timing.GapMS)
}
