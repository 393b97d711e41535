// Package config_test tests the configuration loading for the
// voice-clone-service.
package config_test

import (
	"testing"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[paths]
voices_dir = "assets/voices"
output_dir = "/tmp/voice-clone-out"
base_logs_dir = "/tmp/voice-clone-logs"

[model]
model_id = "Qwen/Qwen3-TTS-12Hz-0.6B-Base"
service_host = "127.0.0.1"
service_port = 8000
timeout_seconds = 120
language = "Chinese"
max_new_tokens = 2048
max_input_chars = 512
seed = 42
full_clone = true

[nats]
url = "nats://127.0.0.1:4222"
synthesis_stream_name = "VOICE_CLONE_JOBS"
synthesis_consumer_name = "voice-clone-workers"
synthesis_requested_subject = "voiceclone.synthesis.requested"
text_object_store_bucket = "VOICE_CLONE_TEXTS"
audio_object_store_bucket = "VOICE_CLONE_AUDIO"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "assets/voices", cfg.Paths.VoicesDir)
	assert.Equal(t, "/tmp/voice-clone-out", cfg.Paths.OutputDir)
	assert.Equal(t, "Qwen/Qwen3-TTS-12Hz-0.6B-Base", cfg.Model.ModelID)
	assert.Equal(t, "127.0.0.1", cfg.Model.ServiceHost)
	assert.Equal(t, 8000, cfg.Model.ServicePort)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Model.GetServiceURL())
	assert.Equal(t, 120, cfg.Model.TimeoutSeconds)
	assert.Equal(t, "Chinese", cfg.Model.Language)
	assert.Equal(t, 2048, cfg.Model.MaxNewTokens)
	assert.Equal(t, 512, cfg.Model.MaxInputChars)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.True(t, cfg.Model.FullClone)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "VOICE_CLONE_JOBS", cfg.NATS.SynthesisStreamName)
	assert.Equal(t, "voiceclone.synthesis.requested", cfg.NATS.SynthesisRequestedSubject)
	assert.Equal(t, "VOICE_CLONE_AUDIO", cfg.NATS.AudioObjectStoreBucket)
}

func TestEnsureDirectories(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()

	cfg := config.Config{
		NATS: config.NATSConfig{},
		Model: config.ModelConfig{
			ModelID:        "",
			ServiceHost:    "127.0.0.1",
			ServicePort:    8000,
			TimeoutSeconds: 0,
			Language:       "",
			MaxNewTokens:   0,
			MaxInputChars:  0,
			Seed:           0,
			FullClone:      false,
		},
		Paths: config.PathsConfig{
			VoicesDir:   "",
			OutputDir:   tempDir + "/out/nested",
			BaseLogsDir: tempDir + "/logs",
		},
	}

	err := cfg.EnsureDirectories()
	require.NoError(t, err)

	assert.DirExists(t, tempDir+"/out/nested")
	assert.DirExists(t, tempDir+"/logs")
}
