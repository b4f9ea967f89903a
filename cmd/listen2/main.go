// Command listen2 aligns narration audio against text, synthesizes speech,
// and extracts readable text from PDF documents.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zachswift615/listen2/align"
	"github.com/zachswift615/listen2/audio"
	"github.com/zachswift615/listen2/config"
	"github.com/zachswift615/listen2/inference"
	"github.com/zachswift615/listen2/pdftext"
	"github.com/zachswift615/listen2/speech"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "align":
		err = runAlign(os.Args[2:])
	case "speak":
		err = runSpeak(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("listen2 - forced alignment, speech synthesis, and PDF text extraction")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  align    Align a WAV recording against its transcript, emit word timestamps")
	fmt.Println("  speak    Synthesize speech from text or a PDF page range into a WAV file")
	fmt.Println("  extract  Extract text from a PDF, optionally split into sentences")
	fmt.Println("  version  Print version and exit")
}

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	parsed, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		parsed = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = parsed
	return zapConfig.Build()
}

func runAlign(args []string) error {
	fs := flag.NewFlagSet("align", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	audioPath := fs.String("audio", "", "Path to the WAV recording")
	transcript := fs.String("transcript", "", "Transcript text to align")
	transcriptFile := fs.String("transcript-file", "", "Read the transcript from a file")
	modelPath := fs.String("model", "", "Override the alignment model path")
	labelsPath := fs.String("labels", "", "Override the label file path")
	outputPath := fs.String("output", "", "Write the word timestamps to a file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if *audioPath == "" {
		return fmt.Errorf("align requires -audio")
	}
	text := *transcript
	if *transcriptFile != "" {
		data, err := os.ReadFile(*transcriptFile)
		if err != nil {
			return fmt.Errorf("failed to read transcript file: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("align requires -transcript or -transcript-file")
	}
	if *modelPath != "" {
		cfg.Alignment.ModelPath = *modelPath
	}
	if *labelsPath != "" {
		cfg.Alignment.LabelsPath = *labelsPath
	}

	clip, err := audio.ReadWAV(*audioPath)
	if err != nil {
		return err
	}
	if clip.SampleRate != align.SampleRate {
		logger.Info("resampling audio",
			zap.Int("from_hz", clip.SampleRate),
			zap.Int("to_hz", align.SampleRate))
		clip, err = clip.Resampled(align.SampleRate)
		if err != nil {
			return err
		}
	}

	aligner, err := align.NewAligner(cfg.Alignment.ModelPath, cfg.Alignment.LabelsPath, inference.Options{
		NumThreads:     cfg.Alignment.NumThreads,
		UseAccelerator: cfg.Alignment.UseAccelerator,
		LibraryPath:    cfg.Runtime.LibraryPath,
	})
	if err != nil {
		return err
	}
	defer aligner.Close()

	logger.Info("aligning audio",
		zap.String("audio", *audioPath),
		zap.Float64("duration_seconds", clip.Duration()))

	segments, err := aligner.AlignAudio(clip.Samples, text)
	if err != nil {
		return err
	}
	logger.Info("alignment complete", zap.Int("words", len(segments)))

	encoded, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}
	encoded = append(encoded, '\n')
	if *outputPath != "" {
		return os.WriteFile(*outputPath, encoded, 0o644)
	}
	_, err = os.Stdout.Write(encoded)
	return err
}

func runSpeak(args []string) error {
	fs := flag.NewFlagSet("speak", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	text := fs.String("text", "", "Text to synthesize")
	textFile := fs.String("text-file", "", "Read the text from a file")
	pdfPath := fs.String("pdf", "", "Synthesize text extracted from a PDF")
	pages := fs.String("pages", "", "Page range within the PDF, e.g. 3 or 2-5")
	outputPath := fs.String("output", "speech.wav", "Path of the WAV file to write")
	speaker := fs.Int("speaker", -1, "Override the speaker id")
	speed := fs.Float64("speed", 0, "Override the speaking speed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if *speaker >= 0 {
		cfg.TTS.SpeakerID = *speaker
	}
	if *speed > 0 {
		cfg.TTS.Speed = *speed
	}

	input := *text
	switch {
	case *textFile != "":
		data, err := os.ReadFile(*textFile)
		if err != nil {
			return fmt.Errorf("failed to read text file: %w", err)
		}
		input = string(data)
	case *pdfPath != "":
		input, err = extractRange(*pdfPath, *pages)
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("speak requires -text, -text-file, or -pdf")
	}

	engine, err := speech.NewEngine(speech.Config{
		ModelPath:   cfg.TTS.ModelPath,
		TokensPath:  cfg.TTS.TokensPath,
		LexiconPath: cfg.TTS.LexiconPath,
		DataDir:     cfg.TTS.DataDir,
		NumThreads:  cfg.TTS.NumThreads,
		Provider:    cfg.TTS.Provider,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	logger.Info("synthesizing speech",
		zap.Int("characters", len(input)),
		zap.Int("speaker", cfg.TTS.SpeakerID),
		zap.Float64("speed", cfg.TTS.Speed))

	generated, err := engine.Generate(input, cfg.TTS.SpeakerID, float32(cfg.TTS.Speed))
	if err != nil {
		return err
	}
	clip := generated.Clip()
	if err := audio.WriteWAV(*outputPath, clip); err != nil {
		return err
	}
	logger.Info("wrote audio",
		zap.String("path", *outputPath),
		zap.Float64("duration_seconds", clip.Duration()))
	return nil
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	pdfPath := fs.String("pdf", "", "Path to the PDF document")
	pages := fs.String("pages", "", "Page range, e.g. 3 or 2-5")
	sentences := fs.Bool("sentences", false, "Emit one sentence per line")
	outputPath := fs.String("output", "", "Write the text to a file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if *pdfPath == "" {
		return fmt.Errorf("extract requires -pdf")
	}

	text, err := extractRange(*pdfPath, *pages)
	if err != nil {
		return err
	}
	logger.Info("extracted text",
		zap.String("pdf", *pdfPath),
		zap.Int("characters", len(text)))

	var out string
	if *sentences {
		out = strings.Join(pdftext.Sentences(text), "\n")
	} else {
		out = text
	}
	if out != "" {
		out += "\n"
	}
	if *outputPath != "" {
		return os.WriteFile(*outputPath, []byte(out), 0o644)
	}
	_, err = os.Stdout.WriteString(out)
	return err
}

// extractRange extracts text from the PDF, restricted to the 1-based
// inclusive page range when one is given.
func extractRange(path, pages string) (string, error) {
	first, last, err := parsePageRange(pages)
	if err != nil {
		return "", err
	}
	extracted, err := pdftext.ExtractPages(path)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, page := range extracted {
		if first > 0 && (page.Number < first || page.Number > last) {
			continue
		}
		if page.Text != "" {
			parts = append(parts, page.Text)
		}
	}
	return strings.Join(parts, " "), nil
}

// parsePageRange parses "", "3", or "2-5". Empty means all pages and
// returns first == 0.
func parsePageRange(spec string) (first, last int, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0, nil
	}
	if lo, hi, ok := strings.Cut(spec, "-"); ok {
		first, err = strconv.Atoi(strings.TrimSpace(lo))
		if err == nil {
			last, err = strconv.Atoi(strings.TrimSpace(hi))
		}
	} else {
		first, err = strconv.Atoi(spec)
		last = first
	}
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q", spec)
	}
	if first < 1 || last < first {
		return 0, 0, fmt.Errorf("invalid page range %q", spec)
	}
	return first, last, nil
}
