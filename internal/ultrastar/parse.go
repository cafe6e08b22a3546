package ultrastar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/errors"
)

// Parse reads a song from the text format. Unknown header keys, blank
// lines, and note lines with too few fields are tolerated; malformed
// numbers in note lines are not.
func Parse(r io.Reader) (*Song, error) {
	song := &Song{Header: Header{Tags: make(map[string]string)}}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "E" {
			break
		}

		switch line[0] {
		case '#':
			parseHeaderLine(&song.Header, line)
		case '-':
			fields := strings.Fields(line)
			beatNum := 0
			if len(fields) > 1 {
				v, err := strconv.Atoi(fields[1])
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: bad break beat %q", apperrors.ErrCorruptedFile, lineNo, fields[1])
				}
				beatNum = v
			}
			song.Notes = append(song.Notes, Note{Type: LineBreak, StartBeat: beatNum})
		case ':', '*', 'F':
			n, ok, err := parseNoteLine(line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", apperrors.ErrCorruptedFile, lineNo, err)
			}
			if ok {
				song.Notes = append(song.Notes, n)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read song: %w", err)
	}
	return song, nil
}

// ReadFile parses a song file from disk.
func ReadFile(path string) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open song file: %w", err)
	}
	defer f.Close()

	song, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return song, nil
}

func parseHeaderLine(h *Header, line string) {
	parts := strings.SplitN(line[1:], ":", 2)
	if len(parts) != 2 {
		return
	}
	key := strings.ToUpper(strings.TrimSpace(parts[0]))
	value := strings.TrimSpace(parts[1])
	h.Tags[key] = value

	switch key {
	case "TITLE":
		h.Title = value
	case "ARTIST":
		h.Artist = value
	case "MP3":
		h.MP3 = value
	case "BPM":
		// Some files use a comma decimal separator.
		if v, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64); err == nil {
			h.BPM = v
		}
	case "GAP":
		if v, err := strconv.Atoi(value); err == nil {
			h.GapMS = v
		}
	case "END":
		if v, err := strconv.Atoi(value); err == nil {
			h.EndMS = v
		}
	}
}

func parseNoteLine(line string) (Note, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Note{}, false, nil
	}

	var typ NoteType
	switch fields[0] {
	case "*":
		typ = Golden
	case "F":
		typ = Freestyle
	case ":":
		typ = Normal
	default:
		return Note{}, false, nil
	}

	nums := make([]int, 3)
	for i, f := range fields[1:4] {
		v, err := strconv.Atoi(f)
		if err != nil {
			return Note{}, false, fmt.Errorf("bad note field %q", f)
		}
		nums[i] = v
	}

	return Note{
		Type:        typ,
		StartBeat:   nums[0],
		LengthBeats: nums[1],
		Pitch:       nums[2],
		Text:        strings.Join(fields[4:], " "),
	}, true, nil
}
