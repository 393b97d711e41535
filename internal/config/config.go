// Package config provides the configuration structure for the
// voice-clone-service.
package config

import (
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Default synthesis settings applied when the TOML omits them.
const (
	DefaultModelID        = "Qwen/Qwen3-TTS-12Hz-0.6B-Base"
	DefaultLanguage       = "Chinese"
	DefaultMaxNewTokens   = 2048
	DefaultMaxInputChars  = 1024
	DefaultTimeoutSeconds = 300
	DefaultOutputPrefix   = "tts"

	dirPermissions = 0o750
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                       string `toml:"url"`
	SynthesisStreamName       string `toml:"synthesis_stream_name"`
	SynthesisConsumerName     string `toml:"synthesis_consumer_name"`
	SynthesisRequestedSubject string `toml:"synthesis_requested_subject"`
	TextObjectStoreBucket     string `toml:"text_object_store_bucket"`
	AudioObjectStoreBucket    string `toml:"audio_object_store_bucket"`
}

// ModelConfig holds the configuration for the standalone model server and
// the synthesis defaults forwarded to it.
type ModelConfig struct {
	ModelID        string `toml:"model_id"`
	ServiceHost    string `toml:"service_host"`
	ServicePort    int    `toml:"service_port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Language       string `toml:"language"`
	MaxNewTokens   int    `toml:"max_new_tokens"`
	MaxInputChars  int    `toml:"max_input_chars"`
	Seed           int64  `toml:"seed"`
	FullClone      bool   `toml:"full_clone"`
}

// GetServiceURL returns the base URL of the model server.
func (m ModelConfig) GetServiceURL() string {
	return fmt.Sprintf("http://%s:%d", m.ServiceHost, m.ServicePort)
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	VoicesDir   string `toml:"voices_dir"`
	OutputDir   string `toml:"output_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS  NATSConfig  `toml:"nats"`
	Model ModelConfig `toml:"model"`
	Paths PathsConfig `toml:"paths"`
}

// Load loads the configuration for the voice-clone-service and fills in
// synthesis defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model.ModelID == "" {
		c.Model.ModelID = DefaultModelID
	}

	if c.Model.Language == "" {
		c.Model.Language = DefaultLanguage
	}

	if c.Model.MaxNewTokens == 0 {
		c.Model.MaxNewTokens = DefaultMaxNewTokens
	}

	if c.Model.MaxInputChars == 0 {
		c.Model.MaxInputChars = DefaultMaxInputChars
	}

	if c.Model.TimeoutSeconds == 0 {
		c.Model.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

// EnsureDirectories creates the output and log directories if absent. The
// voices directory is read-only by contract and is not created here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.BaseLogsDir} {
		if dir == "" {
			continue
		}

		err := os.MkdirAll(dir, dirPermissions)
		if err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
