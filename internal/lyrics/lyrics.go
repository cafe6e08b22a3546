// Package lyrics turns raw transcript text into the ordered token
// sequence the aligner consumes. Plain text and LRC-timed input are
// both supported; LRC timestamps become alignment anchors.
package lyrics

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
)

// Token is one sung unit: a word or, after re-splitting, a syllable.
type Token struct {
	Line       int     `json:"line"`
	Position   int     `json:"position"`
	Text       string  `json:"text"`
	LastInLine bool    `json:"last_in_line"`
	WordEnd    bool    `json:"word_end"`
	Anchored   bool    `json:"anchored,omitempty"`
	AnchorTime float64 `json:"anchor_time,omitempty"`
}

// Syllabifier splits a word into sung syllables. Implementations that
// do not know the word return nil and the word stays whole.
type Syllabifier interface {
	Split(word string) []string
}

// Tokenizer turns transcript text into tokens. A nil Syllabifier
// disables dictionary re-splitting; pre-hyphenated words are still
// split on their hyphens.
type Tokenizer struct {
	Syllabifier Syllabifier
}

// lrcStamp matches LRC timestamps like [01:23.45], [1:23.45], or
// [01:23]. Minutes may be one or two digits; some editors do not pad.
var lrcStamp = regexp.MustCompile(`\[(\d{1,2}):(\d{2})(?:\.(\d{2}))?\]`)

// edgePunct is trimmed from token boundaries.
const edgePunct = ".,!?;:\"”“"

// Tokenize splits text into the ordered token sequence. One non-blank
// input line is one musical line. Returns ErrEmptyLyrics when nothing
// singable remains.
func (t *Tokenizer) Tokenize(text string) ([]Token, error) {
	var tokens []Token
	line := 0

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		anchor, anchored := leadingTimestamp(raw)
		raw = lrcStamp.ReplaceAllString(raw, " ")

		lineTokens := t.tokenizeLine(raw, line)
		if len(lineTokens) == 0 {
			continue
		}

		if anchored {
			lineTokens[0].Anchored = true
			lineTokens[0].AnchorTime = anchor
		}
		lineTokens[len(lineTokens)-1].LastInLine = true

		tokens = append(tokens, lineTokens...)
		line++
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lyrics: %w", err)
	}
	if len(tokens) == 0 {
		return nil, apperrors.ErrEmptyLyrics
	}
	return tokens, nil
}

// TokenizeFile reads and tokenizes a transcript file.
func (t *Tokenizer) TokenizeFile(path string) ([]Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("read lyrics file: %w", err)
	}
	return t.Tokenize(string(data))
}

// tokenizeLine splits one musical line into word and syllable tokens.
func (t *Tokenizer) tokenizeLine(raw string, line int) []Token {
	var out []Token
	pos := 0

	for _, word := range strings.Fields(raw) {
		word = strings.Trim(word, edgePunct)
		if word == "" {
			continue
		}

		sylls := t.splitWord(word)
		for i, s := range sylls {
			out = append(out, Token{
				Line:     line,
				Position: pos,
				Text:     s,
				WordEnd:  i == len(sylls)-1,
			})
			pos++
		}
	}
	return out
}

// splitWord breaks a word into syllables. Hyphens already present in
// the input win; otherwise the dictionary is consulted. Non-final
// syllables keep a trailing hyphen so the split stays visible in the
// output file.
func (t *Tokenizer) splitWord(word string) []string {
	var parts []string
	if strings.Contains(word, "-") {
		for _, p := range strings.Split(word, "-") {
			if p != "" {
				parts = append(parts, p)
			}
		}
	} else if t.Syllabifier != nil {
		parts = t.Syllabifier.Split(word)
	}

	if len(parts) < 2 {
		return []string{word}
	}
	for i := 0; i < len(parts)-1; i++ {
		parts[i] += "-"
	}
	return parts
}

// leadingTimestamp parses the first LRC timestamp of a line, if any.
func leadingTimestamp(raw string) (float64, bool) {
	m := lrcStamp.FindStringSubmatch(raw)
	if m == nil || !strings.HasPrefix(raw, m[0]) {
		return 0, false
	}
	min, _ := strconv.Atoi(m[1])
	sec, _ := strconv.Atoi(m[2])
	frac := 0
	if m[3] != "" {
		frac, _ = strconv.Atoi(m[3])
	}
	return float64(min)*60 + float64(sec) + float64(frac)/100, true
}

// Lines groups tokens by their musical line, preserving order.
func Lines(tokens []Token) [][]Token {
	var lines [][]Token
	for _, tok := range tokens {
		if len(lines) == 0 || lines[len(lines)-1][0].Line != tok.Line {
			lines = append(lines, []Token{tok})
			continue
		}
		last := len(lines) - 1
		lines[last] = append(lines[last], tok)
	}
	return lines
}

// Dictionary is a file-backed syllabifier: one hyphenated word per
// line ("beau-ti-ful"), keyed by the unhyphenated lowercase form.
type Dictionary map[string][]string

// LoadDictionary reads a hyphenation dictionary file.
func LoadDictionary(path string) (Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	dict := make(Dictionary)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		parts := strings.Split(entry, "-")
		if len(parts) < 2 {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(entry, "-", ""))
		dict[key] = parts
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return dict, nil
}

// Split implements Syllabifier. Case is preserved from the input word
// by re-slicing it at the dictionary's syllable lengths.
func (d Dictionary) Split(word string) []string {
	sylls, ok := d[strings.ToLower(word)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(sylls))
	rest := word
	for i, s := range sylls {
		if i == len(sylls)-1 {
			out = append(out, rest)
			break
		}
		if len(s) > len(rest) {
			return nil
		}
		out = append(out, rest[:len(s)])
		rest = rest[len(s):]
	}
	return out
}
