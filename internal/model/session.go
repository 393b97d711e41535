package model

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
)

// Options configures a Session.
type Options struct {
	// ModelID names the pretrained model for the server to load. Empty
	// selects the server's default.
	ModelID string
	// Language is forwarded to every generation call.
	Language string
	// MaxNewTokens bounds the length of generated audio token sequences.
	MaxNewTokens int
	// MaxInputChars bounds accepted input text length, in runes.
	MaxInputChars int
	// Seed, when non-zero, is forwarded to the server. Best effort: fixed
	// output for fixed input holds only if the model's decoding honors it.
	Seed int64
	// FullClone requests transcript-conditioned cloning instead of the
	// faster x-vector-only mode. It requires a non-empty reference text.
	FullClone bool
}

// Session owns the process-wide model instance behind the model server.
// The model is loaded at most once per process lifetime, and generation
// calls are serialized: the GPU model instance does not support
// concurrent inference.
type Session struct {
	client *Client
	opts   Options
	log    *logger.Logger

	mu         sync.Mutex
	loaded     bool
	loadCount  int
	sampleRate int
}

// NewSession creates a Session over a model server client. The model is
// not loaded until the first EnsureLoaded or generation call.
func NewSession(client *Client, opts Options, log *logger.Logger) *Session {
	return &Session{
		client:     client,
		opts:       opts,
		log:        log,
		mu:         sync.Mutex{},
		loaded:     false,
		loadCount:  0,
		sampleRate: 0,
	}
}

// EnsureLoaded resolves weights and instantiates the model on first call;
// subsequent calls are no-ops. Load failures are fatal and wrap
// core.ErrModelLoad; they are not retried here.
func (s *Session) EnsureLoaded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensureLoadedLocked(ctx)
}

func (s *Session) ensureLoadedLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	resp, err := s.client.LoadModel(ctx, LoadRequest{ModelID: s.opts.ModelID})
	if err != nil {
		return err
	}

	s.loaded = true
	s.loadCount++
	s.sampleRate = resp.SampleRate

	s.log.Info(
		"Model %s loaded on %s (native sample rate %d Hz)",
		resp.ModelID, resp.Device, resp.SampleRate,
	)

	return nil
}

// LoadCount reports how many times the model was actually loaded. A probe
// for tests and diagnostics; it must never exceed one per process.
func (s *Session) LoadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadCount
}

// BuildConditioning derives the voice-clone prompt for a reference
// profile. The model is loaded first if needed. In full-clone mode an
// empty reference transcript is rejected before any server call.
func (s *Session) BuildConditioning(
	ctx context.Context,
	profile core.VoiceProfile,
) (core.Conditioning, error) {
	if profile.ReferenceAudioPath == "" {
		return core.Conditioning{}, fmt.Errorf(
			"%w: no reference audio path", core.ErrReferenceAudio,
		)
	}

	if s.opts.FullClone && profile.ReferenceText == "" {
		return core.Conditioning{}, fmt.Errorf(
			"%w: full-clone mode needs a transcript for %q",
			core.ErrReferenceTextMissing, profile.ReferenceAudioPath,
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ensureLoadedLocked(ctx)
	if err != nil {
		return core.Conditioning{}, err
	}

	req := PromptRequest{
		ReferenceAudioPath: profile.ReferenceAudioPath,
		ReferenceText:      profile.ReferenceText,
		XVectorOnly:        !s.opts.FullClone,
	}

	resp, err := s.client.CreatePrompt(ctx, req)
	if err != nil {
		return core.Conditioning{}, fmt.Errorf(
			"failed to build conditioning from %q: %w",
			profile.ReferenceAudioPath, err,
		)
	}

	return core.Conditioning{
		PromptID:           resp.PromptID,
		ReferenceAudioPath: profile.ReferenceAudioPath,
		ReferenceText:      profile.ReferenceText,
	}, nil
}

// Generate renders one text against a conditioning artifact. At most one
// generation is in flight at a time. Input validation failures and server
// generation failures both wrap core.ErrSynthesis so a batch can record
// them per item and keep going.
func (s *Session) Generate(
	ctx context.Context,
	text string,
	conditioning core.Conditioning,
) (core.Clip, error) {
	err := s.validateText(text)
	if err != nil {
		return core.Clip{}, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.ensureLoadedLocked(ctx)
	if err != nil {
		return core.Clip{}, err
	}

	req := GenerateRequest{
		Text:         text,
		PromptID:     conditioning.PromptID,
		Language:     s.opts.Language,
		MaxNewTokens: s.opts.MaxNewTokens,
		Seed:         s.opts.Seed,
	}

	clip, err := s.client.GenerateSpeech(ctx, req)
	if err != nil {
		return core.Clip{}, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}

	return clip, nil
}

func (s *Session) validateText(text string) error {
	if text == "" {
		return core.ErrTextEmpty
	}

	if s.opts.MaxInputChars > 0 && utf8.RuneCountInString(text) > s.opts.MaxInputChars {
		return fmt.Errorf(
			"%w: %d runes, limit %d",
			core.ErrTextTooLong,
			utf8.RuneCountInString(text),
			s.opts.MaxInputChars,
		)
	}

	return nil
}
