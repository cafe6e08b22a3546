// Package align reconciles onsets, the pitch track, and lyric tokens
// into provisional note candidates. Each token gets a time span and a
// representative pitch; the quantizer maps those onto the beat grid.
package align

import (
	"fmt"
	"math"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/dsp"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/lyrics"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/onset"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/pitch"
)

// Candidate is one aligned token: a time span plus a representative
// pitch. PitchHz is meaningful only when Voiced is true.
type Candidate struct {
	Start   float64
	End     float64
	PitchHz float64
	Voiced  bool
	Token   lyrics.Token
}

// Result is the full alignment output. ZeroOnsetLines lists lines
// whose spans were evenly spaced for lack of any onset or anchor;
// callers surface these as degraded estimates.
type Result struct {
	Candidates     []Candidate
	ZeroOnsetLines []int
}

// InfeasibleError reports a line whose token/onset counts differ too
// drastically for a monotonic alignment. It aborts the current song
// only; batch callers may retry with relaxed thresholds.
type InfeasibleError struct {
	Line   int
	Tokens int
	Onsets int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("line %d is not alignable: %d tokens against %d onsets", e.Line, e.Tokens, e.Onsets)
}

func (e *InfeasibleError) IsRecoverable() bool {
	return true
}

// Engine aligns token and onset sequences line by line. Costs shape
// the monotonic matching: skipping an onset or token has a flat price,
// and matched segments pay for implausible per-token durations.
type Engine struct {
	MinSyllable        float64
	MaxSyllable        float64
	UnmatchedOnsetCost float64
	UnmatchedTokenCost float64
	DurationCost       float64
	LineGap            float64
	InfeasibleRatio    float64
	InfeasibleMinTok   int
}

func NewEngine() *Engine {
	return &Engine{
		MinSyllable:        0.1,
		MaxSyllable:        1.0,
		UnmatchedOnsetCost: 0.6,
		UnmatchedTokenCost: 0.8,
		DurationCost:       1.0,
		LineGap:            0.8,
		InfeasibleRatio:    10.0,
		InfeasibleMinTok:   20,
	}
}

// Relax loosens the engine for a retry after an InfeasibleError.
func (e *Engine) Relax() {
	e.InfeasibleRatio *= 2
	e.DurationCost /= 2
}

// minSlot is the smallest span any token may receive, in seconds.
const minSlot = 0.02

// defaultSpan approximates a typical sung syllable, in seconds.
const defaultSpan = 0.3

// Align produces one candidate per token. duration is the audio
// length in seconds and bounds the final line.
func (e *Engine) Align(tokens []lyrics.Token, onsets []onset.Onset, frames []pitch.Frame, duration float64) (*Result, error) {
	if len(tokens) == 0 {
		return &Result{}, nil
	}

	times := make([]float64, len(onsets))
	for i, o := range onsets {
		times[i] = o.Time
	}

	plans := e.buildPlans(lyrics.Lines(tokens), times, duration)

	res := &Result{}
	for _, p := range plans {
		n, m := len(p.tokens), len(p.onsets)
		if n >= e.InfeasibleMinTok && m > 0 && float64(n)/float64(m) >= e.InfeasibleRatio {
			return nil, &InfeasibleError{Line: p.tokens[0].Line, Tokens: n, Onsets: m}
		}

		spans := e.alignLine(p)
		if m == 0 && !p.anchored {
			res.ZeroOnsetLines = append(res.ZeroOnsetLines, p.tokens[0].Line)
		}
		for i, s := range spans {
			res.Candidates = append(res.Candidates, Candidate{
				Start: s.start,
				End:   s.end,
				Token: p.tokens[i],
			})
		}
	}

	sanitize(res.Candidates)
	attachPitch(res.Candidates, frames)
	return res, nil
}

type span struct {
	start, end float64
}

type linePlan struct {
	tokens   []lyrics.Token
	onsets   []float64
	window   span
	anchored bool
}

// buildPlans partitions tokens and onsets into per-line windows.
// Anchored lines take their window start from the anchor timestamp;
// runs of unanchored lines share out onset clusters detected via gaps
// in onset density.
func (e *Engine) buildPlans(lines [][]lyrics.Token, times []float64, duration float64) []linePlan {
	count := len(lines)
	plans := make([]linePlan, count)

	anchored := make([]bool, count)
	starts := make([]float64, count)
	for i, ln := range lines {
		if ln[0].Anchored {
			anchored[i] = true
			starts[i] = ln[0].AnchorTime
		}
	}

	nextAnchor := func(i int) float64 {
		for j := i + 1; j < count; j++ {
			if anchored[j] {
				return starts[j]
			}
		}
		return duration
	}

	i := 0
	prevEnd := 0.0
	for i < count {
		if anchored[i] {
			end := nextAnchor(i)
			if limit := starts[i] + float64(len(lines[i]))*e.MaxSyllable; end > limit {
				end = limit
			}
			if end < starts[i]+minSlot {
				end = starts[i] + minSlot
			}
			plans[i] = linePlan{
				tokens:   lines[i],
				onsets:   within(times, starts[i], end),
				window:   span{starts[i], end},
				anchored: true,
			}
			prevEnd = end
			i++
			continue
		}

		j := i
		for j < count && !anchored[j] {
			j++
		}
		runEnd := duration
		if j < count {
			runEnd = starts[j]
		}
		e.fillRun(plans[i:j], lines[i:j], within(times, prevEnd, runEnd), prevEnd, runEnd)
		prevEnd = runEnd
		i = j
	}
	return plans
}

// fillRun assigns onset clusters to a run of unanchored lines.
// Clusters are split at silences longer than LineGap and distributed
// contiguously; lines left without onsets share the remaining time
// evenly between their neighbors.
func (e *Engine) fillRun(plans []linePlan, lines [][]lyrics.Token, times []float64, runStart, runEnd float64) {
	count := len(lines)
	if count == 0 {
		return
	}
	clusters := clusterOnsets(times, e.LineGap)
	nc := len(clusters)

	for k := range plans {
		lo := k * nc / count
		hi := (k + 1) * nc / count
		var lineOnsets []float64
		if lo < hi {
			lineOnsets = times[clusters[lo][0]:clusters[hi-1][1]]
		}
		plans[k] = linePlan{tokens: lines[k], onsets: lineOnsets}
	}

	// Window ends come from the next line that has onsets.
	next := runEnd
	for k := count - 1; k >= 0; k-- {
		plans[k].window.end = next
		if len(plans[k].onsets) > 0 {
			next = plans[k].onsets[0]
		}
	}

	// Window starts: a line with onsets begins at its first onset;
	// consecutive empty lines split their shared interval evenly.
	cursor := runStart
	for k := 0; k < count; k++ {
		if len(plans[k].onsets) > 0 {
			plans[k].window.start = plans[k].onsets[0]
			cursor = plans[k].window.end
			continue
		}
		empty := 1
		for k+empty < count && len(plans[k+empty].onsets) == 0 {
			empty++
		}
		end := plans[k+empty-1].window.end
		if end < cursor+float64(empty)*minSlot {
			end = cursor + float64(empty)*minSlot
		}
		step := (end - cursor) / float64(empty)
		for x := 0; x < empty; x++ {
			plans[k+x].window = span{cursor + float64(x)*step, cursor + float64(x+1)*step}
		}
		cursor = end
		k += empty - 1
	}
}

// alignLine spans one line's tokens. Anchored lines pin their first
// token to the anchor and align the rest against the remaining onsets.
func (e *Engine) alignLine(p linePlan) []span {
	n := len(p.tokens)

	if p.anchored {
		if n == 1 {
			return []span{{p.window.start, p.window.end}}
		}
		rest := linePlan{
			tokens: p.tokens[1:],
			onsets: within(p.onsets, p.window.start+minSlot, p.window.end),
			window: span{math.Min(p.window.start+defaultSpan, p.window.end-minSlot), p.window.end},
		}
		spans := e.alignLine(rest)
		head := span{p.window.start, spans[0].start}
		if head.end < head.start+minSlot {
			head.end = math.Min(p.window.start+defaultSpan, p.window.end)
		}
		return append([]span{head}, spans...)
	}

	if len(p.onsets) == 0 {
		return evenSpans(n, p.window)
	}
	pairs := e.matchPairs(n, p.onsets, p.window.end)
	if len(pairs) == 0 {
		return evenSpans(n, p.window)
	}
	return e.buildSpans(n, p.onsets, pairs, p.window)
}

type matchPair struct {
	token, onset int
}

// matchPairs finds the lowest-cost monotonic token/onset matching.
// States are (token, onset) matches; a transition closes the segment
// between two matches and prices its skipped onsets, its interior
// tokens, and the plausibility of the per-token duration it implies.
// Ties prefer the alignment with the smallest maximum token duration,
// then the earliest predecessor.
func (e *Engine) matchPairs(n int, onsets []float64, windowEnd float64) []matchPair {
	m := len(onsets)
	const eps = 1e-9

	cost := make([][]float64, n)
	maxd := make([][]float64, n)
	prevT := make([][]int, n)
	prevO := make([][]int, n)
	for i := 0; i < n; i++ {
		cost[i] = make([]float64, m)
		maxd[i] = make([]float64, m)
		prevT[i] = make([]int, m)
		prevO[i] = make([]int, m)
		for j := 0; j < m; j++ {
			// From the virtual start: i leading tokens and j leading
			// onsets go unmatched.
			cost[i][j] = float64(i)*e.UnmatchedTokenCost + float64(j)*e.UnmatchedOnsetCost
			maxd[i][j] = 0
			prevT[i][j] = -1
			prevO[i][j] = -1

			for pi := 0; pi < i; pi++ {
				for pj := 0; pj < j; pj++ {
					k := i - pi
					gap := onsets[j] - onsets[pj]
					per := gap / float64(k)
					c := cost[pi][pj] +
						float64(k-1)*e.UnmatchedTokenCost +
						float64(j-pj-1)*e.UnmatchedOnsetCost +
						float64(k)*e.durationCost(per)
					d := math.Max(maxd[pi][pj], per)
					if c < cost[i][j]-eps || (math.Abs(c-cost[i][j]) <= eps && d < maxd[i][j]-eps) {
						cost[i][j] = c
						maxd[i][j] = d
						prevT[i][j] = pi
						prevO[i][j] = pj
					}
				}
			}
		}
	}

	// Close with the cheapest final match; trailing tokens and onsets
	// pay flat costs only.
	bestT, bestO := -1, -1
	bestCost, bestMax := math.Inf(1), math.Inf(1)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			c := cost[i][j] +
				float64(n-1-i)*e.UnmatchedTokenCost +
				float64(m-1-j)*e.UnmatchedOnsetCost
			if c < bestCost-eps || (math.Abs(c-bestCost) <= eps && maxd[i][j] < bestMax-eps) {
				bestCost = c
				bestMax = maxd[i][j]
				bestT, bestO = i, j
			}
		}
	}

	noMatch := float64(n)*e.UnmatchedTokenCost + float64(m)*e.UnmatchedOnsetCost
	if bestT < 0 || noMatch < bestCost-eps {
		return nil
	}

	var pairs []matchPair
	for t, o := bestT, bestO; t >= 0; t, o = prevT[t][o], prevO[t][o] {
		pairs = append(pairs, matchPair{t, o})
		if prevT[t][o] < 0 {
			break
		}
	}
	for l, r := 0, len(pairs)-1; l < r; l, r = l+1, r-1 {
		pairs[l], pairs[r] = pairs[r], pairs[l]
	}
	return pairs
}

func (e *Engine) durationCost(per float64) float64 {
	switch {
	case per < e.MinSyllable:
		return e.DurationCost * (e.MinSyllable - per) / e.MinSyllable
	case per > e.MaxSyllable:
		return e.DurationCost * (per - e.MaxSyllable) / e.MaxSyllable
	}
	return 0
}

// buildSpans turns matched pairs into tiled token spans. Tokens
// between two matches subdivide the onset interval evenly; leading
// and trailing tokens stretch toward the window edges.
func (e *Engine) buildSpans(n int, onsets []float64, pairs []matchPair, window span) []span {
	starts := make([]float64, n)

	first := pairs[0]
	if k := first.token; k > 0 {
		t0 := onsets[first.onset]
		a := window.start
		if t0-a < float64(k)*minSlot {
			a = t0 - float64(k)*minSlot
		}
		step := (t0 - a) / float64(k)
		for i := 0; i < k; i++ {
			starts[i] = a + float64(i)*step
		}
	}

	for p, cur := range pairs {
		starts[cur.token] = onsets[cur.onset]
		if p+1 == len(pairs) {
			continue
		}
		nxt := pairs[p+1]
		if k := nxt.token - cur.token; k > 1 {
			a, b := onsets[cur.onset], onsets[nxt.onset]
			step := (b - a) / float64(k)
			for i := 1; i < k; i++ {
				starts[cur.token+i] = a + float64(i)*step
			}
		}
	}

	last := pairs[len(pairs)-1]
	k := n - last.token
	a := onsets[last.onset]
	b := window.end
	if limit := a + float64(k)*e.MaxSyllable; b > limit {
		b = limit
	}
	if b < a+float64(k)*minSlot {
		b = a + float64(k)*minSlot
	}
	step := (b - a) / float64(k)
	for i := 1; i < k; i++ {
		starts[last.token+i] = a + float64(i)*step
	}

	spans := make([]span, n)
	for i := 0; i < n-1; i++ {
		spans[i] = span{starts[i], starts[i+1]}
	}
	spans[n-1] = span{starts[n-1], b}
	for i := range spans {
		if spans[i].end > spans[i].start+e.MaxSyllable {
			spans[i].end = spans[i].start + e.MaxSyllable
		}
	}
	return spans
}

// evenSpans spaces n tokens evenly across a window. Used for lines
// with no onsets at all; degraded but never a failure.
func evenSpans(n int, w span) []span {
	end := w.end
	if end < w.start+float64(n)*minSlot {
		end = w.start + float64(n)*minSlot
	}
	step := (end - w.start) / float64(n)
	spans := make([]span, n)
	for i := range spans {
		spans[i] = span{w.start + float64(i)*step, w.start + float64(i+1)*step}
	}
	return spans
}

// sanitize enforces positive durations and ordered, non-overlapping
// spans across line boundaries.
func sanitize(cands []Candidate) {
	for i := range cands {
		if i > 0 && cands[i].Start < cands[i-1].Start+minSlot {
			cands[i].Start = cands[i-1].Start + minSlot
		}
		if cands[i].End < cands[i].Start+minSlot {
			cands[i].End = cands[i].Start + minSlot
		}
		if i > 0 && cands[i-1].End > cands[i].Start {
			cands[i-1].End = cands[i].Start
		}
	}
}

// attachPitch sets each candidate's pitch to the confidence-weighted
// median of the voiced frames inside its span.
func attachPitch(cands []Candidate, frames []pitch.Frame) {
	fi := 0
	for i := range cands {
		for fi < len(frames) && frames[fi].Time < cands[i].Start {
			fi++
		}
		var values, weights []float64
		for j := fi; j < len(frames) && frames[j].Time < cands[i].End; j++ {
			if frames[j].Voiced() {
				values = append(values, frames[j].Frequency)
				weights = append(weights, frames[j].Confidence)
			}
		}
		if len(values) > 0 {
			cands[i].PitchHz = dsp.WeightedMedian(values, weights)
			cands[i].Voiced = true
		}
	}
}

// within returns the onsets inside [lo, hi).
func within(times []float64, lo, hi float64) []float64 {
	a := 0
	for a < len(times) && times[a] < lo {
		a++
	}
	b := a
	for b < len(times) && times[b] < hi {
		b++
	}
	return times[a:b]
}

// clusterOnsets groups onset indices separated by silences shorter
// than gap, returning [start, end) index ranges.
func clusterOnsets(times []float64, gap float64) [][2]int {
	var clusters [][2]int
	for i := range times {
		if i == 0 || times[i]-times[i-1] > gap {
			clusters = append(clusters, [2]int{i, i + 1})
			continue
		}
		clusters[len(clusters)-1][1] = i + 1
	}
	return clusters
}
