package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
)

const (
	outputFileFormat = "%s_%04d.wav"
	dirPermissions   = 0o750
)

// Log formats.
const (
	logFmtBatchStart    = "Batch: %d lines, voice reference %s"
	logFmtItemDone      = "Synthesized item %d: %s"
	logFmtItemFailed    = "Failed to synthesize item %d: %v"
	logFmtBatchCanceled = "Batch canceled after %d items"
	logFmtBatchDone     = "Batch complete: %d succeeded, %d failed"
)

// ProgressFunc is invoked after each completed batch item, successful or
// not. It is the only progress-reporting point the synthesizer exposes;
// callers needing responsiveness run the batch on a dedicated goroutine
// and watch this callback.
type ProgressFunc func(sequence int, outputPath string, itemErr error)

// BatchRequest describes one batch run.
type BatchRequest struct {
	Texts          []string
	Selector       core.VoiceSelector
	OutputDir      string
	FilenamePrefix string
}

// Synthesizer orchestrates voice resolution, conditioning, generation and
// audio writing across a list of texts. Generation is strictly
// sequential: the single model handle is the throughput bottleneck, and
// the fixed costs (model load, conditioning build) are amortized by
// reuse, not parallelism.
type Synthesizer struct {
	resolver     core.VoiceResolver
	model        core.SpeechModel
	conditioning *ConditioningCache
	writer       core.AudioWriter
	log          *logger.Logger
	progress     ProgressFunc
}

// NewSynthesizer creates a Synthesizer. The conditioning cache is owned
// by the synthesizer and persists across Run calls, so repeated runs with
// the same voice selector rebuild nothing.
func NewSynthesizer(
	resolver core.VoiceResolver,
	speechModel core.SpeechModel,
	writer core.AudioWriter,
	log *logger.Logger,
) *Synthesizer {
	return &Synthesizer{
		resolver:     resolver,
		model:        speechModel,
		conditioning: NewConditioningCache(speechModel),
		writer:       writer,
		log:          log,
		progress:     nil,
	}
}

// OnProgress installs the progress callback. Passing nil disables it.
func (s *Synthesizer) OnProgress(progress ProgressFunc) {
	s.progress = progress
}

// Run synthesizes every text in input order and writes numbered WAV files
// {OutputDir}/{FilenamePrefix}_{0001,0002,...}.wav.
//
// Lines that are blank after trimming are skipped and consume no sequence
// number. Fatal errors (voice resolution, model load, conditioning build)
// abort the run before any output is produced; per-item generation or
// write failures are recorded in that item's result and sibling items
// continue. Cancellation is honored between items: the results collected
// so far are returned with a nil error.
func (s *Synthesizer) Run(ctx context.Context, req BatchRequest) ([]core.SynthesisResult, error) {
	texts := trimNonBlank(req.Texts)
	if len(texts) == 0 {
		return nil, core.ErrNoTexts
	}

	conditioning, err := s.prepare(ctx, req.Selector)
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(req.OutputDir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create output directory: %w", core.ErrAudioWrite, err)
	}

	s.log.Info(logFmtBatchStart, len(texts), conditioning.ReferenceAudioPath)

	results := make([]core.SynthesisResult, 0, len(texts))

	for index, text := range texts {
		if ctx.Err() != nil {
			s.log.Warn(logFmtBatchCanceled, len(results))

			return results, nil
		}

		sequence := index + 1
		outputPath := filepath.Join(
			req.OutputDir,
			fmt.Sprintf(outputFileFormat, req.FilenamePrefix, sequence),
		)

		results = append(results, s.runItem(ctx, text, sequence, outputPath, conditioning))
	}

	s.logSummary(results)

	return results, nil
}

// SynthesizeOne renders a single text to an explicit output path. It is
// the degenerate single-item case of the same pipeline: conditioning is
// still cached, so a following batch with the same voice rebuilds
// nothing.
func (s *Synthesizer) SynthesizeOne(
	ctx context.Context,
	text string,
	selector core.VoiceSelector,
	outputPath string,
) error {
	conditioning, err := s.prepare(ctx, selector)
	if err != nil {
		return err
	}

	clip, err := s.model.Generate(ctx, text, conditioning)
	if err != nil {
		return err
	}

	err = s.writer.Write(clip, outputPath)
	if err != nil {
		return err
	}

	return nil
}

// prepare resolves the voice selector and builds (or reuses) the
// conditioning artifact. Resolution happens before any model work so an
// unknown voice fails without touching the GPU.
func (s *Synthesizer) prepare(
	ctx context.Context,
	selector core.VoiceSelector,
) (core.Conditioning, error) {
	profile, err := s.resolveSelector(selector)
	if err != nil {
		return core.Conditioning{}, err
	}

	err = s.model.EnsureLoaded(ctx)
	if err != nil {
		return core.Conditioning{}, err
	}

	conditioning, err := s.conditioning.GetOrBuild(ctx, profile)
	if err != nil {
		return core.Conditioning{}, err
	}

	return conditioning, nil
}

func (s *Synthesizer) resolveSelector(selector core.VoiceSelector) (core.VoiceProfile, error) {
	err := selector.Validate()
	if err != nil {
		return core.VoiceProfile{}, err
	}

	if selector.Voice != "" {
		profile, resolveErr := s.resolver.Resolve(selector.Voice)
		if resolveErr != nil {
			return core.VoiceProfile{}, resolveErr
		}

		// A selector-supplied transcript overrides the registered one.
		if selector.ReferenceText != "" {
			profile.ReferenceText = selector.ReferenceText
		}

		return profile, nil
	}

	_, statErr := os.Stat(selector.ReferenceAudioPath)
	if statErr != nil {
		return core.VoiceProfile{}, fmt.Errorf(
			"%w: %q: %w",
			core.ErrReferenceAudio, selector.ReferenceAudioPath, statErr,
		)
	}

	return core.VoiceProfile{
		Name:               "",
		ReferenceAudioPath: selector.ReferenceAudioPath,
		ReferenceText:      selector.ReferenceText,
	}, nil
}

func (s *Synthesizer) runItem(
	ctx context.Context,
	text string,
	sequence int,
	outputPath string,
	conditioning core.Conditioning,
) core.SynthesisResult {
	result := core.SynthesisResult{
		Text:       text,
		Sequence:   sequence,
		OutputPath: outputPath,
		Err:        nil,
	}

	clip, err := s.model.Generate(ctx, text, conditioning)
	if err == nil {
		err = s.writer.Write(clip, outputPath)
	}

	if err != nil {
		result.Err = err
		result.OutputPath = ""

		s.log.Error(logFmtItemFailed, sequence, err)
	} else {
		s.log.Info(logFmtItemDone, sequence, outputPath)
	}

	if s.progress != nil {
		s.progress(sequence, result.OutputPath, result.Err)
	}

	return result
}

func (s *Synthesizer) logSummary(results []core.SynthesisResult) {
	succeeded := 0

	for _, result := range results {
		if result.Succeeded() {
			succeeded++
		}
	}

	s.log.Info(logFmtBatchDone, succeeded, len(results)-succeeded)
}

// trimNonBlank trims every line and drops the blank ones, preserving
// order.
func trimNonBlank(texts []string) []string {
	kept := make([]string, 0, len(texts))

	for _, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}

		kept = append(kept, trimmed)
	}

	return kept
}
