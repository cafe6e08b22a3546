package ultrastar

import (
	"fmt"
	"math"
	"sort"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/align"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/beat"
)

// Quantizer maps aligned candidates onto the beat grid. Resolution is
// the number of file beats per grid beat (the quarter-beat convention
// of the format); PitchCenter places the re-centered pitch
// distribution inside the renderable window.
type Quantizer struct {
	Resolution  int
	PitchCenter int
	ReferenceHz float64
}

func NewQuantizer() *Quantizer {
	return &Quantizer{
		Resolution:  4,
		PitchCenter: 15,
		ReferenceHz: 440.0,
	}
}

// Golden note thresholds: long or high notes earn bonus points.
const (
	goldenLength = 6
	goldenPitch  = 25
)

// ViolationError reports a note that broke the format invariants even
// after overlap resolution. This is an internal contract failure.
type ViolationError struct {
	Index       int
	StartBeat   int
	LengthBeats int
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("note %d violates format invariants: start_beat=%d length_beats=%d",
		e.Index, e.StartBeat, e.LengthBeats)
}

// Quantize produces the final song. meta supplies Title/Artist/MP3;
// BPM, GAP and END are derived here. Candidates must be in time
// order, one per lyric token.
func (q *Quantizer) Quantize(cands []align.Candidate, grid *beat.Grid, meta Header) (*Song, error) {
	header := meta
	header.BPM = grid.Tempo
	header.GapMS = int(math.Round(grid.Offset() * 1000))

	song := &Song{Header: header}
	if len(cands) == 0 {
		return song, nil
	}

	effTempo := grid.Tempo * float64(q.Resolution)
	beatDur := 60.0 / effTempo
	gapSec := float64(header.GapMS) / 1000.0

	// Re-centering offset from the song's pitch distribution.
	var semis []int
	for _, c := range cands {
		if c.Voiced {
			semis = append(semis, semitone(c.PitchHz, q.ReferenceHz))
		}
	}
	shift := 0
	if len(semis) > 0 {
		shift = medianInt(semis) - q.PitchCenter
	}

	notes := make([]Note, len(cands))
	breaks := make([]bool, len(cands))
	for i, c := range cands {
		start := int(math.Round((c.Start - gapSec) / beatDur))
		if start < 0 {
			start = 0
		}
		length := int(math.Round((c.End - c.Start) / beatDur))
		if length < 1 {
			length = 1
		}
		n := Note{Type: Freestyle, StartBeat: start, LengthBeats: length, Text: c.Token.Text}
		if c.Voiced {
			n.Type = Normal
			n.Pitch = semitone(c.PitchHz, q.ReferenceHz) - shift
		}
		notes[i] = n
		breaks[i] = c.Token.LastInLine
	}

	resolveOverlaps(notes)

	for i := range notes {
		if notes[i].Type == Normal &&
			(notes[i].LengthBeats > goldenLength || notes[i].Pitch > goldenPitch) {
			notes[i].Type = Golden
		}
		if notes[i].StartBeat < 0 || notes[i].LengthBeats < 1 {
			return nil, &ViolationError{
				Index:       i,
				StartBeat:   notes[i].StartBeat,
				LengthBeats: notes[i].LengthBeats,
			}
		}
	}

	song.Notes = interleaveBreaks(notes, breaks)
	song.Header.EndMS = int(math.Round(cands[len(cands)-1].End * 1000))
	return song, nil
}

// resolveOverlaps shrinks a note into the gap before its successor,
// then shifts the successor forward if a one-beat floor still
// collides. Notes are never moved earlier.
func resolveOverlaps(notes []Note) {
	for i := 1; i < len(notes); i++ {
		prev := &notes[i-1]
		cur := &notes[i]
		if prev.EndBeat() <= cur.StartBeat {
			continue
		}
		gap := cur.StartBeat - prev.StartBeat
		if gap < 1 {
			gap = 1
		}
		prev.LengthBeats = gap
		if prev.EndBeat() > cur.StartBeat {
			cur.StartBeat = prev.EndBeat()
		}
	}
}

// interleaveBreaks inserts a line break after each end-of-line note.
// The break lands one beat after the note, clamped to the next note's
// start; the final line gets no break.
func interleaveBreaks(notes []Note, breaks []bool) []Note {
	out := make([]Note, 0, len(notes)+4)
	for i, n := range notes {
		out = append(out, n)
		if !breaks[i] || i == len(notes)-1 {
			continue
		}
		lb := n.EndBeat() + 1
		if next := notes[i+1].StartBeat; lb > next {
			lb = next
		}
		out = append(out, Note{Type: LineBreak, StartBeat: lb})
	}
	return out
}

// semitone maps a frequency to its nearest semitone offset from the
// reference.
func semitone(hz, refHz float64) int {
	return int(math.Round(12 * math.Log2(hz/refHz)))
}

func medianInt(vals []int) int {
	sorted := make([]int, len(vals))
	copy(sorted, vals)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return int(math.Round(float64(sorted[mid-1]+sorted[mid]) / 2))
}
