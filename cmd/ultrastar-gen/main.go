package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/config"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/pipeline"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/server"
	"github.com/Thallion/Ultrastar-Deluxe-TXT-file-Creator/internal/ultrastar"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ultrastar-gen",
	Short: "Generate UltraStar karaoke files from audio and lyrics",
	Long: `ultrastar-gen turns a vocal recording plus a plain-text lyric
transcript into a time-quantized, pitch-annotated UltraStar .txt file.

Pipeline: audio → vocal isolation → pitch/beat/onset analysis →
lyric alignment → beat quantization → song file`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a karaoke file for one song",
	Long: `Generate runs the full pipeline for a single audio file and lyric
transcript. Plain-text lyrics are aligned against detected onsets;
.lrc lyrics use their timestamps as alignment anchors.

Examples:
  ultrastar-gen generate -i song.mp3 -l song.txt
  ultrastar-gen generate -i song.wav -l song.lrc --title "My Song" --artist "Me"
  ultrastar-gen generate -i song.mp3 -l song.txt --reference other.txt --midi-out song.mid`,
	RunE: runGenerate,
}

var batchCmd = &cobra.Command{
	Use:   "batch <directory>",
	Short: "Generate karaoke files for every audio/lyric pair in a directory",
	Long: `Batch scans a directory for audio files (.wav, .mp3) with a lyric
file of the same name (.txt or .lrc) next to them and processes each
pair in parallel. One song's failure never stops the rest.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface",
	Long: `Start a local web server where songs can be uploaded and processed
as background jobs, with live progress and downloadable results.`,
	RunE: runServe,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file> [other]",
	Short: "Analyze a song file, or compare two",
	Long: `Inspect parses an UltraStar .txt file and prints note statistics and
a quality score. With two files, both are scored and compared.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInspect,
}

var (
	// generate flags
	audioPath   string
	lyricsPath  string
	outputPath  string
	midiOutput  string
	refPath     string
	dictPath    string
	songTitle   string
	songArtist  string
	resolution  int
	pitchCenter int
	noSeparate  bool
	relaxed     bool
	verbose     bool

	// batch flags
	batchOutDir  string
	batchWorkers int

	// serve flags
	port int
	host string
)

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)

	generateCmd.Flags().StringVarP(&audioPath, "input", "i", "", "Input audio file (WAV or MP3)")
	generateCmd.Flags().StringVarP(&lyricsPath, "lyrics", "l", "", "Lyric transcript (.txt or .lrc)")
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output song file (default: input path with .txt)")
	generateCmd.Flags().StringVar(&midiOutput, "midi-out", "", "Also export the notes as a MIDI file")
	generateCmd.Flags().StringVar(&refPath, "reference", "", "Reference song file to bias beat resolution")
	generateCmd.Flags().StringVar(&dictPath, "dict", "", "Hyphenation dictionary for syllable splitting")
	generateCmd.Flags().StringVar(&songTitle, "title", "", "Song title (default: audio filename)")
	generateCmd.Flags().StringVar(&songArtist, "artist", "", "Song artist")
	generateCmd.Flags().IntVar(&resolution, "resolution", 0, "Beats per grid beat (default: 4, or inferred from reference)")
	generateCmd.Flags().IntVar(&pitchCenter, "pitch-center", 15, "Target center of the re-centered pitch range")
	generateCmd.Flags().BoolVar(&noSeparate, "no-separate", false, "Skip vocal separation, analyze the mix directly")
	generateCmd.Flags().BoolVar(&relaxed, "relaxed", false, "Relax alignment thresholds (retry mode for sparse onsets)")
	generateCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	generateCmd.MarkFlagRequired("input")
	generateCmd.MarkFlagRequired("lyrics")

	batchCmd.Flags().StringVarP(&batchOutDir, "output-dir", "o", "", "Directory for generated files (default: next to audio)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Parallel songs (default: from WORKERS env or CPU count)")
	batchCmd.Flags().StringVar(&refPath, "reference", "", "Reference song file to bias beat resolution")
	batchCmd.Flags().StringVar(&dictPath, "dict", "", "Hyphenation dictionary for syllable splitting")
	batchCmd.Flags().BoolVar(&noSeparate, "no-separate", false, "Skip vocal separation, analyze the mix directly")
	batchCmd.Flags().BoolVar(&relaxed, "relaxed", false, "Relax alignment thresholds")

	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: PORT env or 8080)")
	serveCmd.Flags().StringVar(&host, "host", "", "Host to bind (default: HOST env)")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
		cancel()
	}()
	return ctx, cancel
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	env := config.Load()

	cfg := pipeline.DefaultConfig()
	cfg.AudioPath = audioPath
	cfg.LyricsPath = lyricsPath
	cfg.OutputPath = outputPath
	cfg.MIDIOutputPath = midiOutput
	cfg.ReferencePath = refPath
	cfg.DictionaryPath = dictPath
	cfg.Title = songTitle
	cfg.Artist = songArtist
	cfg.Resolution = resolution
	cfg.PitchCenter = pitchCenter
	cfg.Separate = !noSeparate
	cfg.Relaxed = relaxed

	orch := pipeline.NewOrchestrator(env.FFmpegPath, env.PythonPath, os.Stdout, verbose)
	result, err := orch.Execute(ctx, cfg)
	if err != nil {
		if pipeline.IsRecoverable(err) && !relaxed {
			fmt.Fprintf(os.Stderr, "Error: %s\nHint: retry with --relaxed\n", err)
			os.Exit(1)
		}
		return err
	}

	fmt.Printf("Done! %d notes at %.1f BPM\n", result.NoteCount, result.BPM)
	fmt.Printf("Output saved to: %s\n", result.OutputPath)
	if result.MIDIPath != "" {
		fmt.Printf("MIDI saved to: %s\n", result.MIDIPath)
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	env := config.Load()
	workers := batchWorkers
	if workers <= 0 {
		workers = env.Workers
	}

	pairs, err := pipeline.DiscoverPairs(args[0])
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no audio/lyric pairs found in %s", args[0])
	}
	fmt.Printf("Processing %d songs with %d workers...\n", len(pairs), workers)

	cfg := pipeline.DefaultConfig()
	cfg.ReferencePath = refPath
	cfg.DictionaryPath = dictPath
	cfg.Separate = !noSeparate
	cfg.Relaxed = relaxed

	batch := &pipeline.Batch{
		Workers:    workers,
		OutputDir:  batchOutDir,
		FFmpegPath: env.FFmpegPath,
		PythonPath: env.PythonPath,
	}
	outcomes := batch.Run(ctx, pairs, cfg)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Printf("  %-30s FAILED: %v\n", o.Pair.Name, o.Err)
			continue
		}
		fmt.Printf("  %-30s %d notes at %.1f BPM -> %s\n",
			o.Pair.Name, o.Result.NoteCount, o.Result.BPM, o.Result.OutputPath)
		for _, d := range o.Result.Degradations {
			fmt.Printf("  %-30s warning: %s: %s\n", "", d.Stage, d.Detail)
		}
	}

	fmt.Printf("%d succeeded, %d failed\n", len(outcomes)-failed, failed)
	if failed == len(outcomes) {
		return fmt.Errorf("all songs failed")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	env := config.Load()
	if port == 0 {
		port = env.Port
	}
	if host == "" {
		host = env.Host
	}

	srv, err := server.New(server.Config{
		Host:       host,
		Port:       port,
		FFmpegPath: env.FFmpegPath,
		PythonPath: env.PythonPath,
	})
	if err != nil {
		return err
	}
	return srv.Run()
}

func runInspect(cmd *cobra.Command, args []string) error {
	report, err := ultrastar.AnalyzeFile(args[0])
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return report.WriteText(os.Stdout)
	}

	other, err := ultrastar.AnalyzeFile(args[1])
	if err != nil {
		return err
	}
	return ultrastar.Compare(report, other).WriteText(os.Stdout)
}
