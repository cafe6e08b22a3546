// Package ultrastar holds the output song model: quantization of
// aligned candidates onto the beat grid, the text format codec, file
// analysis, and reference timing inference.
package ultrastar

// NoteType distinguishes the four note line kinds of the format.
type NoteType int

const (
	Normal NoteType = iota
	Golden
	Freestyle
	LineBreak
)

// Marker returns the character that introduces this note type in the
// text format.
func (t NoteType) Marker() string {
	switch t {
	case Golden:
		return "*"
	case Freestyle:
		return "F"
	case LineBreak:
		return "-"
	}
	return ":"
}

func (t NoteType) String() string {
	switch t {
	case Golden:
		return "golden"
	case Freestyle:
		return "freestyle"
	case LineBreak:
		return "linebreak"
	}
	return "normal"
}

// Note is one output line. LineBreak notes carry only StartBeat.
type Note struct {
	Type        NoteType
	StartBeat   int
	LengthBeats int
	Pitch       int
	Text        string
}

// EndBeat is the first beat after the note.
func (n Note) EndBeat() int {
	return n.StartBeat + n.LengthBeats
}

// Header holds the song metadata. BPM is the raw grid tempo; beat
// arithmetic multiplies it by the beat resolution. Tags preserves
// every raw header key read by the parser.
type Header struct {
	Title  string
	Artist string
	MP3    string
	BPM    float64
	GapMS  int
	EndMS  int
	Tags   map[string]string
}

// Song is a parsed or freshly quantized file.
type Song struct {
	Header Header
	Notes  []Note
}

// VocalNotes returns the sung notes, excluding line breaks.
func (s *Song) VocalNotes() []Note {
	var out []Note
	for _, n := range s.Notes {
		if n.Type != LineBreak {
			out = append(out, n)
		}
	}
	return out
}

// LineCount is the number of musical lines: line breaks plus one.
func (s *Song) LineCount() int {
	if len(s.Notes) == 0 {
		return 0
	}
	count := 1
	for _, n := range s.Notes {
		if n.Type == LineBreak {
			count++
		}
	}
	return count
}
