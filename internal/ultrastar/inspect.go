package ultrastar

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarizes an integer series from a song.
type Stats struct {
	Min    int
	Max    int
	Mean   float64
	Median float64
}

// Report is the quality analysis of one song. The score awards 25
// points each for a renderable pitch range, a plausible BPM, enough
// notes for a full song, and mostly non-empty lyrics.
type Report struct {
	File       string
	Title      string
	Artist     string
	BPM        float64
	GapMS      int
	NoteCount  int
	Normals    int
	Goldens    int
	Freestyles int
	Lines      int
	Pitch      Stats
	Duration   Stats
	BeatMin    int
	BeatMax    int
	Syllables  int
	EmptyNotes int
	Score      int
	Issues     []string
}

// Analyze builds the report for a parsed song.
func Analyze(song *Song, file string) (*Report, error) {
	vocal := song.VocalNotes()
	if len(vocal) == 0 {
		return nil, fmt.Errorf("%s: no vocal notes", file)
	}

	r := &Report{
		File:      file,
		Title:     song.Header.Title,
		Artist:    song.Header.Artist,
		BPM:       song.Header.BPM,
		GapMS:     song.Header.GapMS,
		NoteCount: len(vocal),
		Lines:     song.LineCount(),
	}

	pitches := make([]int, len(vocal))
	lengths := make([]int, len(vocal))
	r.BeatMin = vocal[0].StartBeat
	r.BeatMax = vocal[0].StartBeat
	for i, n := range vocal {
		pitches[i] = n.Pitch
		lengths[i] = n.LengthBeats
		if n.StartBeat < r.BeatMin {
			r.BeatMin = n.StartBeat
		}
		if n.StartBeat > r.BeatMax {
			r.BeatMax = n.StartBeat
		}
		switch n.Type {
		case Golden:
			r.Goldens++
		case Freestyle:
			r.Freestyles++
		default:
			r.Normals++
		}
		if n.Text == "" || n.Text == "~" {
			r.EmptyNotes++
		} else {
			r.Syllables++
		}
	}
	r.Pitch = statsOf(pitches)
	r.Duration = statsOf(lengths)

	if r.Pitch.Min >= 0 && r.Pitch.Max <= 40 {
		r.Score += 25
	} else {
		r.Issues = append(r.Issues, fmt.Sprintf("unrealistic pitch range %d..%d", r.Pitch.Min, r.Pitch.Max))
	}
	if r.BPM >= 60 && r.BPM <= 250 {
		r.Score += 25
	} else {
		r.Issues = append(r.Issues, fmt.Sprintf("implausible BPM %.1f", r.BPM))
	}
	if r.NoteCount > 50 {
		r.Score += 25
	} else {
		r.Issues = append(r.Issues, "very few notes")
	}
	if float64(r.EmptyNotes) < float64(r.NoteCount)*0.5 {
		r.Score += 25
	} else {
		r.Issues = append(r.Issues, "mostly empty lyrics")
	}
	return r, nil
}

// AnalyzeFile parses and analyzes a song file.
func AnalyzeFile(path string) (*Report, error) {
	song, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Analyze(song, filepath.Base(path))
}

// WriteText prints the report for the inspect command.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s\n", r.File)
	if r.Title != "" || r.Artist != "" {
		fmt.Fprintf(w, "  %s - %s\n", r.Artist, r.Title)
	}
	fmt.Fprintf(w, "  notes:  %d (%d normal, %d golden, %d freestyle) in %d lines\n",
		r.NoteCount, r.Normals, r.Goldens, r.Freestyles, r.Lines)
	fmt.Fprintf(w, "  pitch:  %d..%d (mean %.1f)\n", r.Pitch.Min, r.Pitch.Max, r.Pitch.Mean)
	fmt.Fprintf(w, "  length: %d..%d beats (median %.1f)\n", r.Duration.Min, r.Duration.Max, r.Duration.Median)
	fmt.Fprintf(w, "  beats:  %d..%d\n", r.BeatMin, r.BeatMax)
	fmt.Fprintf(w, "  timing: %.1f BPM, gap %d ms\n", r.BPM, r.GapMS)
	fmt.Fprintf(w, "  lyrics: %d syllables, %d empty\n", r.Syllables, r.EmptyNotes)
	fmt.Fprintf(w, "  score:  %d/100\n", r.Score)
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "    - %s\n", issue)
	}
	return nil
}

// Comparison scores two files side by side.
type Comparison struct {
	A, B     *Report
	BPMMatch bool
	GapMatch bool
	Better   string
}

// Compare names the file with the higher score; ties go to the
// second.
func Compare(a, b *Report) *Comparison {
	better := b.File
	if a.Score > b.Score {
		better = a.File
	}
	return &Comparison{
		A:        a,
		B:        b,
		BPMMatch: a.BPM == b.BPM,
		GapMatch: a.GapMS == b.GapMS,
		Better:   better,
	}
}

// WriteText prints both reports and the verdict.
func (c *Comparison) WriteText(w io.Writer) error {
	if err := c.A.WriteText(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := c.B.WriteText(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	match := func(ok bool) string {
		if ok {
			return "match"
		}
		return "differ"
	}
	fmt.Fprintf(w, "BPM %s, GAP %s\n", match(c.BPMMatch), match(c.GapMatch))
	fmt.Fprintf(w, "better: %s (%d vs %d)\n", c.Better, c.A.Score, c.B.Score)
	return nil
}

func statsOf(vals []int) Stats {
	xs := make([]float64, len(vals))
	for i, v := range vals {
		xs[i] = float64(v)
	}
	sort.Float64s(xs)
	return Stats{
		Min:    int(xs[0]),
		Max:    int(xs[len(xs)-1]),
		Mean:   stat.Mean(xs, nil),
		Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
	}
}
