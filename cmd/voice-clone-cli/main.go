// main package for the voice-clone command line client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/model"
	"github.com/book-expert/voice-clone-service/internal/synth"
	"github.com/book-expert/voice-clone-service/internal/textio"
	"github.com/book-expert/voice-clone-service/internal/voices"
)

// Flag names.
const (
	flagVoice      = "voice"
	flagRefAudio   = "ref-audio"
	flagRefText    = "ref-text"
	flagText       = "text"
	flagBatchFile  = "batch-file"
	flagOut        = "out"
	flagOutDir     = "out-dir"
	flagOutPrefix  = "out-prefix"
	flagListVoices = "list-voices"
	flagLanguage   = "language"
	flagMaxTokens  = "max-tokens"
	flagSeed       = "seed"
	flagFullClone  = "full-clone"
	flagVerbose    = "verbose"
	flagHealth     = "health"
)

// Flag descriptions.
const (
	flagVoiceDesc      = "Name of a registered voice from the voices directory"
	flagRefAudioDesc   = "Path to a reference audio clip (.wav or .mp3) for ad-hoc cloning"
	flagRefTextDesc    = "Transcript of the reference audio"
	flagTextDesc       = "Text to synthesize (repeatable)"
	flagBatchFileDesc  = "UTF-8 text file synthesized line by line"
	flagOutDesc        = "Output file path for a single text (.wav)"
	flagOutDirDesc     = "Output directory for batch synthesis"
	flagOutPrefixDesc  = "Filename prefix for batch output files"
	flagListVoicesDesc = "List registered voices and exit"
	flagLanguageDesc   = "Override the configured synthesis language"
	flagMaxTokensDesc  = "Override the configured max_new_tokens"
	flagSeedDesc       = "Override the configured generation seed (best effort)"
	flagFullCloneDesc  = "Use transcript-conditioned cloning (requires a reference transcript)"
	flagVerboseDesc    = "Enable verbose logging"
	flagHealthDesc     = "Check model server health and exit"
)

// Error and log messages.
const (
	errFailedToLoadConfig = "Failed to load configuration: %v"
	errFailedToInitLogger = "Failed to initialize logger: %v"
	errFailedToCreateDirs = "Failed to create directories: %v"
	errHealthCheckFailed  = "Health check failed: %v"
	errEitherTextOrBatch  = "Either -text or -batch-file must be provided"
	errCannotSpecifyBoth  = "Cannot specify both -text and -batch-file"
	errOutWithBatch       = "-out applies to a single -text only; use -out-dir for batches"
	msgServiceNotHealthy  = "Model server is not healthy: %v\n"
	msgServiceHealthy     = "Model server is healthy"
	msgGenerated          = "Generated: %s\n"
	msgItemFailed         = "Failed [%d]: %v\n"
	msgBatchSummary       = "Done: %d succeeded, %d failed in %s\n"
	logClientInitialized  = "Voice clone client initialized, model server at %s"
)

// File names and timeouts.
const (
	logFileNameDefault  = "voice-clone-cli.log"
	logFileNameVerbose  = "voice-clone-cli-verbose.log"
	defaultSingleOutput = "output.wav"
	healthCheckTimeout  = 10 * time.Second
)

var errBatchHadFailures = errors.New("one or more lines failed to synthesize")

// textList collects repeatable -text flags.
type textList []string

func (t *textList) String() string {
	return fmt.Sprint(*t)
}

func (t *textList) Set(value string) error {
	*t = append(*t, value)

	return nil
}

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	voice      string
	refAudio   string
	refText    string
	texts      textList
	batchFile  string
	out        string
	outDir     string
	outPrefix  string
	language   string
	maxTokens  int
	seed       int64
	fullClone  bool
	listVoices bool
	verbose    bool
	health     bool
}

func main() {
	err := run()
	if err != nil {
		// The logger might not be initialized yet, so use the standard
		// log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	cfg, logInstance, err := setup(flags.verbose)
	if err != nil {
		return err
	}

	defer func() { _ = logInstance.Close() }()

	logInstance.Info(logClientInitialized, cfg.Model.GetServiceURL())

	client := model.NewClient(
		cfg.Model.GetServiceURL(),
		time.Duration(cfg.Model.TimeoutSeconds)*time.Second,
	)

	if flags.health {
		return handleHealthCheck(client, logInstance)
	}

	registry := voices.NewDirRegistry(cfg.Paths.VoicesDir)

	if flags.listVoices {
		return handleListVoices(registry)
	}

	applyOverrides(cfg, flags)

	session := model.NewSession(client, model.Options{
		ModelID:       cfg.Model.ModelID,
		Language:      cfg.Model.Language,
		MaxNewTokens:  cfg.Model.MaxNewTokens,
		MaxInputChars: cfg.Model.MaxInputChars,
		Seed:          cfg.Model.Seed,
		FullClone:     cfg.Model.FullClone,
	}, logInstance)

	synthesizer := synth.NewSynthesizer(
		registry, session, audio.NewWAVWriter(), logInstance,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return handleExecution(ctx, synthesizer, cfg, flags)
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flag.StringVar(&flags.refAudio, flagRefAudio, "", flagRefAudioDesc)
	flag.StringVar(&flags.refText, flagRefText, "", flagRefTextDesc)
	flag.Var(&flags.texts, flagText, flagTextDesc)
	flag.StringVar(&flags.batchFile, flagBatchFile, "", flagBatchFileDesc)
	flag.StringVar(&flags.out, flagOut, "", flagOutDesc)
	flag.StringVar(&flags.outDir, flagOutDir, "", flagOutDirDesc)
	flag.StringVar(&flags.outPrefix, flagOutPrefix, config.DefaultOutputPrefix, flagOutPrefixDesc)
	flag.BoolVar(&flags.listVoices, flagListVoices, false, flagListVoicesDesc)
	flag.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	flag.IntVar(&flags.maxTokens, flagMaxTokens, 0, flagMaxTokensDesc)
	flag.Int64Var(&flags.seed, flagSeed, 0, flagSeedDesc)
	flag.BoolVar(&flags.fullClone, flagFullClone, false, flagFullCloneDesc)
	flag.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.Parse()

	return flags
}

// applyOverrides lets command-line flags win over configured synthesis
// defaults.
func applyOverrides(cfg *config.Config, flags appFlags) {
	if flags.language != "" {
		cfg.Model.Language = flags.language
	}

	if flags.maxTokens > 0 {
		cfg.Model.MaxNewTokens = flags.maxTokens
	}

	if flags.seed != 0 {
		cfg.Model.Seed = flags.seed
	}

	if flags.fullClone {
		cfg.Model.FullClone = true
	}
}

// setup loads configuration and initializes the logger.
func setup(verbose bool) (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), "voice-clone-cli-bootstrap.log")
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	logFileName := logFileNameDefault
	if verbose {
		logFileName = logFileNameVerbose
	}

	logInstance, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	err = cfg.EnsureDirectories()
	if err != nil {
		logInstance.Error(errFailedToCreateDirs, err)

		return nil, nil, fmt.Errorf(errFailedToCreateDirs, err)
	}

	return cfg, logInstance, nil
}

func handleHealthCheck(client *model.Client, logInstance *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	err := client.HealthCheck(ctx)
	if err != nil {
		logInstance.Error(errHealthCheckFailed, err)
		fmt.Printf(msgServiceNotHealthy, err)

		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println(msgServiceHealthy)

	return nil
}

func handleListVoices(registry *voices.Registry) error {
	names, err := registry.List()
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}

	for _, name := range names {
		fmt.Println(name)
	}

	return nil
}

// handleExecution validates flags and dispatches to single or batch
// synthesis.
func handleExecution(
	ctx context.Context,
	synthesizer *synth.Synthesizer,
	cfg *config.Config,
	flags appFlags,
) error {
	if len(flags.texts) == 0 && flags.batchFile == "" {
		flag.Usage()

		return errors.New(errEitherTextOrBatch)
	}

	if len(flags.texts) > 0 && flags.batchFile != "" {
		return errors.New(errCannotSpecifyBoth)
	}

	selector := core.VoiceSelector{
		Voice:              flags.voice,
		ReferenceAudioPath: flags.refAudio,
		ReferenceText:      flags.refText,
	}

	if flags.out != "" && (len(flags.texts) != 1 || flags.batchFile != "") {
		return errors.New(errOutWithBatch)
	}

	if len(flags.texts) == 1 && flags.batchFile == "" && flags.outDir == "" {
		outputPath := singleOutputPath(flags.out, cfg.Paths.OutputDir)

		return synthesizeSingle(ctx, synthesizer, selector, flags.texts[0], outputPath)
	}

	texts := []string(flags.texts)

	if flags.batchFile != "" {
		fileTexts, err := textio.ReadLinesFile(flags.batchFile)
		if err != nil {
			return fmt.Errorf("failed to read batch file: %w", err)
		}

		texts = fileTexts
	}

	outputDir := flags.outDir
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	}

	return synthesizeBatch(ctx, synthesizer, selector, texts, outputDir, flags.outPrefix)
}

// singleOutputPath picks the destination for single-text mode, falling
// back to the configured output directory when no explicit path is given.
func singleOutputPath(out, outputDir string) string {
	if out != "" {
		return out
	}

	return filepath.Join(outputDir, defaultSingleOutput)
}

func synthesizeSingle(
	ctx context.Context,
	synthesizer *synth.Synthesizer,
	selector core.VoiceSelector,
	text, outputPath string,
) error {
	err := synthesizer.SynthesizeOne(ctx, textio.Normalize(text), selector, outputPath)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	fmt.Printf(msgGenerated, outputPath)

	return nil
}

func synthesizeBatch(
	ctx context.Context,
	synthesizer *synth.Synthesizer,
	selector core.VoiceSelector,
	texts []string,
	outputDir, outputPrefix string,
) error {
	synthesizer.OnProgress(func(sequence int, outputPath string, itemErr error) {
		if itemErr != nil {
			fmt.Printf(msgItemFailed, sequence, itemErr)

			return
		}

		fmt.Printf(msgGenerated, outputPath)
	})

	results, err := synthesizer.Run(ctx, synth.BatchRequest{
		Texts:          textio.NormalizeAll(texts),
		Selector:       selector,
		OutputDir:      outputDir,
		FilenamePrefix: outputPrefix,
	})
	if err != nil {
		return fmt.Errorf("batch synthesis failed: %w", err)
	}

	succeeded := 0

	for _, result := range results {
		if result.Succeeded() {
			succeeded++
		}
	}

	fmt.Printf(msgBatchSummary, succeeded, len(results)-succeeded, outputDir)

	if succeeded < len(results) {
		return errBatchHadFailures
	}

	return nil
}
