package ultrastar

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticSong(notes int, bpm float64, pitch int, text string) *Song {
	song := &Song{Header: Header{Title: "Synth", Artist: "Gen", BPM: bpm, GapMS: 1000}}
	for i := 0; i < notes; i++ {
		song.Notes = append(song.Notes, Note{
			Type:        Normal,
			StartBeat:   i * 4,
			LengthBeats: 2,
			Pitch:       pitch,
			Text:        text,
		})
		if i%8 == 7 && i != notes-1 {
			song.Notes = append(song.Notes, Note{Type: LineBreak, StartBeat: i*4 + 3})
		}
	}
	return song
}

func TestAnalyzeCleanSong(t *testing.T) {
	song := syntheticSong(60, 120, 15, "la")

	r, err := Analyze(song, "clean.txt")
	require.NoError(t, err)

	assert.Equal(t, 100, r.Score)
	assert.Empty(t, r.Issues)
	assert.Equal(t, 60, r.NoteCount)
	assert.Equal(t, 60, r.Normals)
	assert.Equal(t, 8, r.Lines)
	assert.Equal(t, 15, r.Pitch.Min)
	assert.Equal(t, 15, r.Pitch.Max)
	assert.Equal(t, 0, r.BeatMin)
	assert.Equal(t, 59*4, r.BeatMax)
	assert.Equal(t, 60, r.Syllables)
	assert.Zero(t, r.EmptyNotes)
}

func TestAnalyzeStats(t *testing.T) {
	song := &Song{Header: Header{BPM: 120}}
	for i, p := range []int{10, 20, 12, 14, 16} {
		song.Notes = append(song.Notes, Note{
			Type:        Normal,
			StartBeat:   i * 4,
			LengthBeats: i + 1,
			Pitch:       p,
			Text:        "la",
		})
	}

	r, err := Analyze(song, "stats.txt")
	require.NoError(t, err)

	assert.Equal(t, 10, r.Pitch.Min)
	assert.Equal(t, 20, r.Pitch.Max)
	assert.InDelta(t, 14.4, r.Pitch.Mean, 1e-9)
	assert.InDelta(t, 14.0, r.Pitch.Median, 1e-9)
	assert.InDelta(t, 3.0, r.Duration.Median, 1e-9)
}

func TestAnalyzeFlagsEveryIssue(t *testing.T) {
	song := syntheticSong(10, 500, -5, "")

	r, err := Analyze(song, "bad.txt")
	require.NoError(t, err)

	assert.Zero(t, r.Score)
	require.Len(t, r.Issues, 4)
	assert.Contains(t, r.Issues[0], "pitch range")
	assert.Contains(t, r.Issues[1], "BPM")
	assert.Contains(t, r.Issues[2], "few notes")
	assert.Contains(t, r.Issues[3], "empty lyrics")
	assert.Equal(t, 10, r.EmptyNotes)
}

func TestAnalyzeCountsTildeAsEmpty(t *testing.T) {
	song := syntheticSong(4, 120, 15, "~")

	r, err := Analyze(song, "tilde.txt")
	require.NoError(t, err)
	assert.Equal(t, 4, r.EmptyNotes)
	assert.Zero(t, r.Syllables)
}

func TestAnalyzeNoVocalNotes(t *testing.T) {
	song := &Song{Notes: []Note{{Type: LineBreak, StartBeat: 4}}}
	_, err := Analyze(song, "empty.txt")
	assert.Error(t, err)
}

func TestAnalyzeCountsTypes(t *testing.T) {
	song := &Song{
		Header: Header{BPM: 120},
		Notes: []Note{
			{Type: Normal, StartBeat: 0, LengthBeats: 2, Pitch: 10, Text: "a"},
			{Type: Golden, StartBeat: 4, LengthBeats: 8, Pitch: 30, Text: "b"},
			{Type: LineBreak, StartBeat: 13},
			{Type: Freestyle, StartBeat: 16, LengthBeats: 2, Pitch: 0, Text: "c"},
		},
	}

	r, err := Analyze(song, "mixed.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, r.NoteCount)
	assert.Equal(t, 1, r.Normals)
	assert.Equal(t, 1, r.Goldens)
	assert.Equal(t, 1, r.Freestyles)
	assert.Equal(t, 2, r.Lines)
	assert.Equal(t, 0, r.Pitch.Min)
	assert.Equal(t, 30, r.Pitch.Max)
}

func TestReportWriteText(t *testing.T) {
	song := syntheticSong(60, 120, 15, "la")
	r, err := Analyze(song, "clean.txt")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "clean.txt")
	assert.Contains(t, out, "score:  100/100")
	assert.Contains(t, out, "120.0 BPM")
}

func TestCompareNamesBetterFile(t *testing.T) {
	good, err := Analyze(syntheticSong(60, 120, 15, "la"), "good.txt")
	require.NoError(t, err)
	bad, err := Analyze(syntheticSong(10, 500, -5, ""), "bad.txt")
	require.NoError(t, err)

	c := Compare(good, bad)
	assert.Equal(t, "good.txt", c.Better)
	assert.False(t, c.BPMMatch)

	// Ties go to the second file.
	tie := Compare(good, good)
	assert.Equal(t, "good.txt", tie.Better)

	other, err := Analyze(syntheticSong(60, 120, 15, "la"), "other.txt")
	require.NoError(t, err)
	assert.Equal(t, "other.txt", Compare(good, other).Better)

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))
	assert.Contains(t, buf.String(), fmt.Sprintf("better: %s", c.Better))
}
