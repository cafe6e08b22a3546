// Package midifile exports a quantized song as a standard MIDI file,
// one track of note on/off pairs with lyric meta events.
package midifile

import (
	"fmt"
	"math"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/ultrastar"
)

const ticksPerBeat = 480

// Writer converts songs to SMF. Resolution must match the beat
// resolution the song was quantized with so tick timing lines up with
// the audio. BasePitch anchors the re-centered pitch scale, C3 by
// default.
type Writer struct {
	Resolution int
	BasePitch  int
	Velocity   uint8
}

func NewWriter(resolution int) *Writer {
	return &Writer{
		Resolution: resolution,
		BasePitch:  48,
		Velocity:   100,
	}
}

// Build assembles the SMF in memory. Line breaks and freestyle notes
// carry no pitch and are skipped.
func (w *Writer) Build(song *ultrastar.Song) *smf.SMF {
	var s smf.SMF
	s.TimeFormat = smf.MetricTicks(ticksPerBeat)

	effTempo := song.Header.BPM * float64(w.Resolution)

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(song.Header.Title))
	tr.Add(0, smf.MetaTempo(effTempo))

	gapTicks := uint32(math.Round(float64(song.Header.GapMS) / 1000.0 * effTempo / 60.0 * ticksPerBeat))

	cursor := uint32(0)
	for _, n := range song.Notes {
		if n.Type == ultrastar.LineBreak || n.Type == ultrastar.Freestyle {
			continue
		}
		on := gapTicks + uint32(n.StartBeat)*ticksPerBeat
		off := gapTicks + uint32(n.EndBeat())*ticksPerBeat
		if on < cursor {
			on = cursor
		}
		key := clampKey(w.BasePitch + n.Pitch)

		if n.Text != "" {
			tr.Add(on-cursor, smf.MetaLyric(n.Text))
			cursor = on
		}
		tr.Add(on-cursor, midi.NoteOn(0, key, w.Velocity))
		tr.Add(off-on, midi.NoteOff(0, key))
		cursor = off
	}
	tr.Close(0)
	s.Tracks = append(s.Tracks, tr)
	return &s
}

// WriteFile builds the SMF and writes it to disk.
func (w *Writer) WriteFile(path string, song *ultrastar.Song) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create midi file: %w", err)
	}
	defer f.Close()

	if _, err := w.Build(song).WriteTo(f); err != nil {
		return fmt.Errorf("write midi file: %w", err)
	}
	return f.Close()
}

func clampKey(key int) uint8 {
	if key < 0 {
		return 0
	}
	if key > 127 {
		return 127
	}
	return uint8(key)
}
