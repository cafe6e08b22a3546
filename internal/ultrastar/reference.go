package ultrastar

// Timing is the quantization bias recovered from a reference song in
// the same format. Verified reports whether the reference was
// readable; Resolution is the beat factor to quantize with.
type Timing struct {
	BPM        float64
	GapMS      int
	Resolution int
	Verified   bool
}

// DefaultTiming is the quarter-beat convention, unverified.
func DefaultTiming() *Timing {
	return &Timing{Resolution: 4}
}

// plausibleSyllableMS bounds a sung syllable duration.
const (
	minPlausibleMS = 200
	maxPlausibleMS = 1000
)

// InferTiming reads a reference file and recovers its beat
// resolution. An unreadable or implausible reference falls back to
// the default; this never fails.
func InferTiming(path string) *Timing {
	song, err := ReadFile(path)
	if err != nil {
		return DefaultTiming()
	}
	return TimingFromSong(song)
}

// TimingFromSong tries each candidate factor against the reference's
// first inter-note interval and keeps the first one that lands in the
// plausible sung-syllable range.
func TimingFromSong(song *Song) *Timing {
	vocal := song.VocalNotes()
	_, hasGap := song.Header.Tags["GAP"]
	if len(vocal) == 0 || song.Header.BPM <= 0 || !hasGap {
		return DefaultTiming()
	}

	t := &Timing{
		BPM:        song.Header.BPM,
		GapMS:      song.Header.GapMS,
		Resolution: 4,
		Verified:   true,
	}
	if len(vocal) < 2 {
		return t
	}

	diff := vocal[1].StartBeat - vocal[0].StartBeat
	if diff <= 0 {
		return t
	}
	for _, factor := range []int{1, 2, 4, 8} {
		ms := float64(diff) * 60000 / (song.Header.BPM * float64(factor))
		if ms >= minPlausibleMS && ms <= maxPlausibleMS {
			t.Resolution = factor
			break
		}
	}
	return t
}
