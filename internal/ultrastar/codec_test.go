package ultrastar

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
)

func sampleSong() *Song {
	return &Song{
		Header: Header{
			Title:  "Test Song",
			Artist: "Tester",
			MP3:    "test.mp3",
			BPM:    123.5,
			GapMS:  1500,
			EndMS:  30000,
		},
		Notes: []Note{
			{Type: Normal, StartBeat: 0, LengthBeats: 2, Pitch: 15, Text: "Hel-"},
			{Type: Normal, StartBeat: 2, LengthBeats: 2, Pitch: 15, Text: "lo"},
			{Type: Golden, StartBeat: 5, LengthBeats: 8, Pitch: 27, Text: "world"},
			{Type: LineBreak, StartBeat: 14},
			{Type: Freestyle, StartBeat: 24, LengthBeats: 2, Pitch: 0, Text: "yeah"},
		},
	}
}

func TestEncodeFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleSong()))

	want := strings.Join([]string{
		"#TITLE:Test Song",
		"#ARTIST:Tester",
		"#MP3:test.mp3",
		"#BPM:123.5",
		"#GAP:1500",
		"#END:30000",
		"",
		": 0 2 15 Hel-",
		": 2 2 15 lo",
		"* 5 8 27 world",
		"- 14",
		"F 24 2 0 yeah",
		"E",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestEncodeOmitsZeroEnd(t *testing.T) {
	song := sampleSong()
	song.Header.EndMS = 0

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, song))
	assert.NotContains(t, buf.String(), "#END")
}

func TestRoundTrip(t *testing.T) {
	song := sampleSong()

	var first bytes.Buffer
	require.NoError(t, Encode(&first, song))

	parsed, err := Parse(&first)
	require.NoError(t, err)

	assert.Equal(t, song.Notes, parsed.Notes)
	assert.Equal(t, song.Header.Title, parsed.Header.Title)
	assert.Equal(t, song.Header.Artist, parsed.Header.Artist)
	assert.Equal(t, song.Header.MP3, parsed.Header.MP3)
	assert.Equal(t, song.Header.BPM, parsed.Header.BPM)
	assert.Equal(t, song.Header.GapMS, parsed.Header.GapMS)
	assert.Equal(t, song.Header.EndMS, parsed.Header.EndMS)

	var second bytes.Buffer
	require.NoError(t, Encode(&second, parsed))
	var reference bytes.Buffer
	require.NoError(t, Encode(&reference, song))
	assert.Equal(t, reference.String(), second.String(), "re-encoding is byte identical")
}

func TestParseTolerance(t *testing.T) {
	input := strings.Join([]string{
		"#TITLE:Tolerant",
		"#LANGUAGE:German",
		"#BPM:123,5",
		"#GAP:oops",
		"",
		": 0 2 15 one",
		": broken",
		"-",
		": 4 2 15 two",
		"E",
		"this is ignored",
	}, "\n")

	song, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "Tolerant", song.Header.Title)
	assert.Equal(t, "German", song.Header.Tags["LANGUAGE"])
	assert.Equal(t, 123.5, song.Header.BPM, "comma decimal accepted")
	assert.Zero(t, song.Header.GapMS, "unparsable gap left at zero")

	require.Len(t, song.Notes, 3)
	assert.Equal(t, Normal, song.Notes[0].Type)
	assert.Equal(t, LineBreak, song.Notes[1].Type)
	assert.Zero(t, song.Notes[1].StartBeat, "bare break defaults to beat zero")
	assert.Equal(t, "two", song.Notes[2].Text)
}

func TestParsePreservesTextSpaces(t *testing.T) {
	song, err := Parse(strings.NewReader(": 0 2 15 two words\nE\n"))
	require.NoError(t, err)
	require.Len(t, song.Notes, 1)
	assert.Equal(t, "two words", song.Notes[0].Text)
}

func TestParseCorruptNoteLine(t *testing.T) {
	_, err := Parse(strings.NewReader(": x 2 15 word\nE\n"))
	assert.ErrorIs(t, err, apperrors.ErrCorruptedFile)

	_, err = Parse(strings.NewReader("- x\nE\n"))
	assert.ErrorIs(t, err, apperrors.ErrCorruptedFile)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, apperrors.ErrFileNotFound)
}

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	song := sampleSong()

	require.NoError(t, WriteFile(path, song))

	parsed, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, song.Notes, parsed.Notes)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, "out.txt", entries[0].Name())
}
