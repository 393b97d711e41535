// Package core defines the core business logic and interfaces for the
// voice-clone service.
package core

import (
	"context"
	"errors"
)

// Fatal, session-level errors. These abort a whole run and are never
// retried by this system.
var (
	// ErrVoiceNotFound indicates that no reference audio exists for the
	// requested voice name under the voice directory convention.
	ErrVoiceNotFound = errors.New("voice not found")
	// ErrModelLoad indicates that the model could not be loaded: no
	// compatible GPU, insufficient GPU memory, or weight retrieval failure.
	ErrModelLoad = errors.New("model load failed")
	// ErrReferenceAudio indicates that the reference clip could not be
	// decoded, is empty, or exceeds the duration the model accepts.
	ErrReferenceAudio = errors.New("invalid reference audio")
	// ErrReferenceTextMissing indicates that the model requires a reference
	// transcript and none was supplied.
	ErrReferenceTextMissing = errors.New("reference text required")
)

// Per-item errors. These are recorded against a single batch item and do
// not interrupt sibling items.
var (
	// ErrSynthesis indicates that generation failed for one text.
	ErrSynthesis = errors.New("synthesis failed")
	// ErrAudioWrite indicates that a rendered clip could not be written.
	ErrAudioWrite = errors.New("audio write failed")
)

// Request validation errors.
var (
	// ErrTextEmpty indicates an empty input text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrTextTooLong indicates an input text exceeding the model's limit.
	ErrTextTooLong = errors.New("text exceeds maximum input length")
	// ErrNoTexts indicates a batch with no processable lines.
	ErrNoTexts = errors.New("no texts to synthesize")
	// ErrSelectorConflict indicates that both a voice name and an explicit
	// reference audio path were supplied, or neither.
	ErrSelectorConflict = errors.New(
		"exactly one of voice name or reference audio path must be set",
	)
)

// VoiceProfile is a resolved reference voice: a reference audio clip and
// its transcript. Immutable once resolved.
type VoiceProfile struct {
	Name               string
	ReferenceAudioPath string
	ReferenceText      string
}

// Conditioning is the opaque voice-cloning artifact derived from one
// VoiceProfile. The prompt itself lives in the model server; this handle
// carries the identity it was built from so a cache can key on it.
type Conditioning struct {
	PromptID           string
	ReferenceAudioPath string
	ReferenceText      string
}

// Clip holds raw mono audio samples at the model's native sample rate.
// Samples are 16-bit values widened to int.
type Clip struct {
	PCM        []int
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}

	return float64(len(c.PCM)) / float64(c.SampleRate)
}

// VoiceSelector identifies the voice to clone: either a registered voice
// name or an explicit reference audio path, never both.
type VoiceSelector struct {
	Voice              string
	ReferenceAudioPath string
	ReferenceText      string
}

// Validate enforces the mutual exclusion between Voice and
// ReferenceAudioPath.
func (s VoiceSelector) Validate() error {
	if (s.Voice == "") == (s.ReferenceAudioPath == "") {
		return ErrSelectorConflict
	}

	return nil
}

// SynthesisResult is the per-item outcome of a batch run. Err is nil on
// success; Sequence matches the number embedded in OutputPath.
type SynthesisResult struct {
	Text       string
	Sequence   int
	OutputPath string
	Err        error
}

// Succeeded reports whether this item produced an output file.
func (r SynthesisResult) Succeeded() bool {
	return r.Err == nil
}

// VoiceResolver resolves registered voice names to reference profiles.
type VoiceResolver interface {
	List() ([]string, error)
	Resolve(name string) (VoiceProfile, error)
}

// SpeechModel is the capability surface of the wrapped TTS model. All
// generation calls serialize through a single model instance.
type SpeechModel interface {
	EnsureLoaded(ctx context.Context) error
	BuildConditioning(ctx context.Context, profile VoiceProfile) (Conditioning, error)
	Generate(ctx context.Context, text string, conditioning Conditioning) (Clip, error)
}

// AudioWriter serializes raw samples to a playable file.
type AudioWriter interface {
	Write(clip Clip, destinationPath string) error
}

// ObjectStore defines the interface for interacting with a key-value blob
// store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
