package ultrastar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Encode writes the song in the text format: header fields, a blank
// separator, one line per note, and the E terminator. Output is
// deterministic for a given song.
func Encode(w io.Writer, song *Song) error {
	bw := bufio.NewWriter(w)
	h := song.Header

	fmt.Fprintf(bw, "#TITLE:%s\n", h.Title)
	fmt.Fprintf(bw, "#ARTIST:%s\n", h.Artist)
	fmt.Fprintf(bw, "#MP3:%s\n", h.MP3)
	fmt.Fprintf(bw, "#BPM:%.1f\n", h.BPM)
	fmt.Fprintf(bw, "#GAP:%d\n", h.GapMS)
	if h.EndMS > 0 {
		fmt.Fprintf(bw, "#END:%d\n", h.EndMS)
	}
	fmt.Fprintln(bw)

	for _, n := range song.Notes {
		if n.Type == LineBreak {
			fmt.Fprintf(bw, "- %d\n", n.StartBeat)
			continue
		}
		fmt.Fprintf(bw, "%s %d %d %d %s\n",
			n.Type.Marker(), n.StartBeat, n.LengthBeats, n.Pitch, n.Text)
	}

	fmt.Fprintln(bw, "E")
	return bw.Flush()
}

// WriteFile encodes to a temp file in the target directory and
// renames it into place, so readers never see a partial song.
func WriteFile(path string, song *Song) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".song-*.txt")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, song); err != nil {
		tmp.Close()
		return fmt.Errorf("encode song: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
