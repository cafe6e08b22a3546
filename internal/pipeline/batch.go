package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Pair is one discovered audio/lyrics couple in a batch directory.
type Pair struct {
	Name       string
	AudioPath  string
	LyricsPath string
}

// Outcome is the per-song result of a batch run. Err is set for songs
// that failed; recoverable failures never stop their siblings.
type Outcome struct {
	Pair   Pair
	Result *Result
	Err    error
}

var audioExts = map[string]bool{".wav": true, ".mp3": true}
var lyricExts = []string{".txt", ".lrc"}

// DiscoverPairs scans a directory for audio files with a same-stem
// lyric file next to them. Pairs are returned in name order so batch
// output is stable.
func DiscoverPairs(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read batch directory: %w", err)
	}

	var pairs []Pair
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !audioExts[ext] {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		for _, lext := range lyricExts {
			lyricPath := filepath.Join(dir, stem+lext)
			if _, err := os.Stat(lyricPath); err == nil {
				pairs = append(pairs, Pair{
					Name:       stem,
					AudioPath:  filepath.Join(dir, entry.Name()),
					LyricsPath: lyricPath,
				})
				break
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs, nil
}

// Batch runs the pipeline over many songs with a bounded worker pool.
// Each worker owns its orchestrator and per-song config, so songs
// share nothing. Cancellation drains the queue without emitting
// partial results.
type Batch struct {
	Workers    int
	OutputDir  string
	FFmpegPath string
	PythonPath string
}

// Run processes every pair and returns one outcome per song, in the
// input order.
func (b *Batch) Run(ctx context.Context, pairs []Pair, base Config) []Outcome {
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	outcomes := make([]Outcome, len(pairs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orch := NewOrchestrator(b.FFmpegPath, b.PythonPath, io.Discard, false)
			for idx := range jobs {
				pair := pairs[idx]
				cfg := base
				cfg.AudioPath = pair.AudioPath
				cfg.LyricsPath = pair.LyricsPath
				if b.OutputDir != "" {
					cfg.OutputPath = filepath.Join(b.OutputDir, pair.Name+".txt")
				}
				res, err := orch.Execute(ctx, cfg)
				outcomes[idx] = Outcome{Pair: pair, Result: res, Err: err}
			}
		}()
	}

	for i := range pairs {
		select {
		case <-ctx.Done():
			for j := i; j < len(pairs); j++ {
				outcomes[j] = Outcome{Pair: pairs[j], Err: ctx.Err()}
			}
			close(jobs)
			wg.Wait()
			return outcomes
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return outcomes
}
