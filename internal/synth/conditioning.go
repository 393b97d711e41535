// Package synth orchestrates voice-clone synthesis: it derives one
// conditioning artifact per reference voice and fans it out across many
// text-to-audio generations.
package synth

import (
	"context"
	"sync"

	"github.com/book-expert/voice-clone-service/internal/core"
)

type conditioningKey struct {
	referenceAudioPath string
	referenceText      string
}

// ConditioningCache builds the voice-clone conditioning artifact at most
// once per distinct (reference audio, reference text) pair. It holds a
// single entry: requesting a different pair evicts the previous artifact.
// The cache lives for one session and is accessed only from the synthesis
// worker, but is guarded anyway since it is the one piece of shared
// mutable state besides the model handle.
type ConditioningCache struct {
	model core.SpeechModel

	mu       sync.Mutex
	key      conditioningKey
	artifact core.Conditioning
	valid    bool
}

// NewConditioningCache creates an empty cache over a speech model.
func NewConditioningCache(speechModel core.SpeechModel) *ConditioningCache {
	return &ConditioningCache{
		model:    speechModel,
		mu:       sync.Mutex{},
		key:      conditioningKey{referenceAudioPath: "", referenceText: ""},
		artifact: core.Conditioning{PromptID: "", ReferenceAudioPath: "", ReferenceText: ""},
		valid:    false,
	}
}

// GetOrBuild returns the cached artifact for the profile's reference pair
// or builds it through the model. Build failures are fatal to the run and
// are not cached.
func (c *ConditioningCache) GetOrBuild(
	ctx context.Context,
	profile core.VoiceProfile,
) (core.Conditioning, error) {
	key := conditioningKey{
		referenceAudioPath: profile.ReferenceAudioPath,
		referenceText:      profile.ReferenceText,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.key == key {
		return c.artifact, nil
	}

	artifact, err := c.model.BuildConditioning(ctx, profile)
	if err != nil {
		return core.Conditioning{}, err
	}

	c.key = key
	c.artifact = artifact
	c.valid = true

	return artifact, nil
}
