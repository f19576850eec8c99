// Package config holds the speakstream configuration and its loading rules.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPEAKSTREAM_"

// Config contains all speakstream configuration options.
type Config struct {
	Voice            string        `yaml:"voice" mapstructure:"voice" env:"VOICE"`
	Speed            float64       `yaml:"speed" mapstructure:"speed" env:"SPEED"`
	QueueCapacity    int           `yaml:"queue_capacity" mapstructure:"queue_capacity" env:"QUEUE_CAPACITY"`
	RequestTimeout   time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" env:"REQUEST_TIMEOUT"`
	SaveTimeout      time.Duration `yaml:"save_timeout" mapstructure:"save_timeout" env:"SAVE_TIMEOUT"`
	TranscodeTimeout time.Duration `yaml:"transcode_timeout" mapstructure:"transcode_timeout" env:"TRANSCODE_TIMEOUT"`

	Sentence SentenceConfig `yaml:"sentence" mapstructure:"sentence" envPrefix:"SENTENCE_"`
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine" envPrefix:"ENGINE_"`
	Audio    AudioConfig    `yaml:"audio" mapstructure:"audio" envPrefix:"AUDIO_"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg" mapstructure:"ffmpeg" envPrefix:"FFMPEG_"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache" envPrefix:"CACHE_"`
	NATS     NATSConfig     `yaml:"nats" mapstructure:"nats" envPrefix:"NATS_"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics" envPrefix:"METRICS_"`
	Log      LogConfig      `yaml:"log" mapstructure:"log" envPrefix:"LOG_"`
}

// SentenceConfig sets the accumulator thresholds, in characters.
type SentenceConfig struct {
	MinLength  int `yaml:"min_length" mapstructure:"min_length" env:"MIN_LENGTH"`
	SoftLength int `yaml:"soft_length" mapstructure:"soft_length" env:"SOFT_LENGTH"`
	HardLength int `yaml:"hard_length" mapstructure:"hard_length" env:"HARD_LENGTH"`
}

// EngineConfig selects and configures the synthesis service.
type EngineConfig struct {
	Kind              string `yaml:"kind" mapstructure:"kind" env:"KIND"`
	BaseURL           string `yaml:"base_url" mapstructure:"base_url" env:"BASE_URL"`
	APIKey            string `yaml:"api_key" mapstructure:"api_key" env:"API_KEY"`
	Model             string `yaml:"model" mapstructure:"model" env:"MODEL"`
	Format            string `yaml:"format" mapstructure:"format" env:"FORMAT"`
	Command           string `yaml:"command" mapstructure:"command" env:"COMMAND"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// AudioConfig describes the output device.
type AudioConfig struct {
	SampleRate    int    `yaml:"sample_rate" mapstructure:"sample_rate" env:"SAMPLE_RATE"`
	Channels      int    `yaml:"channels" mapstructure:"channels" env:"CHANNELS"`
	DeviceCommand string `yaml:"device_command" mapstructure:"device_command" env:"DEVICE_COMMAND"`
	FallbackCue   string `yaml:"fallback_cue" mapstructure:"fallback_cue" env:"FALLBACK_CUE"`
}

// FFmpegConfig locates the transcoder.
type FFmpegConfig struct {
	Binary string `yaml:"binary" mapstructure:"binary" env:"BINARY"`
}

// CacheConfig controls the synthesized-audio cache.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled" mapstructure:"enabled" env:"ENABLED"`
	MemoryEntries    int    `yaml:"memory_entries" mapstructure:"memory_entries" env:"MEMORY_ENTRIES"`
	Dir              string `yaml:"dir" mapstructure:"dir" env:"DIR"`
	DiskCapacity     int64  `yaml:"disk_capacity" mapstructure:"disk_capacity" env:"DISK_CAPACITY"`
	CompressionLevel int    `yaml:"compression_level" mapstructure:"compression_level" env:"COMPRESSION_LEVEL"`
}

// NATSConfig configures the message bus bridge.
type NATSConfig struct {
	URL           string `yaml:"url" mapstructure:"url" env:"URL"`
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix" env:"SUBJECT_PREFIX"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr" env:"ADDR"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" env:"LEVEL"`
	File  string `yaml:"file" mapstructure:"file" env:"FILE"`
}

// Engine kinds.
const (
	EngineOpenAI  = "openai"
	EngineCommand = "command"
	EngineMock    = "mock"
)

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Voice:            "alloy",
		Speed:            1.0,
		QueueCapacity:    10,
		RequestTimeout:   15 * time.Second,
		SaveTimeout:      10 * time.Second,
		TranscodeTimeout: 30 * time.Second,
		Sentence: SentenceConfig{
			MinLength:  15,
			SoftLength: 200,
			HardLength: 300,
		},
		Engine: EngineConfig{
			Kind:    EngineOpenAI,
			BaseURL: "https://api.openai.com",
			Model:   "tts-1",
			Format:  "pcm",
		},
		Audio: AudioConfig{
			SampleRate: 24000,
			Channels:   1,
		},
		FFmpeg: FFmpegConfig{
			Binary: "ffmpeg",
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemoryEntries:    256,
			DiskCapacity:     100 * 1024 * 1024,
			CompressionLevel: 3,
		},
		NATS: NATSConfig{
			SubjectPrefix: "speakstream",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then whatever v holds
// (config file and bound flags), then SPEAKSTREAM_* environment variables.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if v != nil {
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("unable to decode configuration: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("unable to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid. It normalizes case on
// enumerated values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Voice) == "" {
		return fmt.Errorf("voice cannot be empty")
	}
	if c.Speed < 0.5 || c.Speed > 100 {
		return fmt.Errorf("speed must be between 0.5 and 100, got %.2f", c.Speed)
	}
	if c.QueueCapacity < 1 || c.QueueCapacity > 1000 {
		return fmt.Errorf("queue_capacity must be between 1 and 1000, got %d", c.QueueCapacity)
	}
	for name, d := range map[string]time.Duration{
		"request_timeout":   c.RequestTimeout,
		"save_timeout":      c.SaveTimeout,
		"transcode_timeout": c.TranscodeTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if err := c.Sentence.Validate(); err != nil {
		return fmt.Errorf("sentence config: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if c.Cache.Enabled {
		if c.Cache.MemoryEntries < 1 {
			return fmt.Errorf("cache memory_entries must be at least 1, got %d", c.Cache.MemoryEntries)
		}
		if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
			return fmt.Errorf("cache compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
		}
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return fmt.Errorf("invalid log level '%s': must be one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// Validate checks the sentence thresholds.
func (c *SentenceConfig) Validate() error {
	if c.MinLength < 1 {
		return fmt.Errorf("min_length must be at least 1, got %d", c.MinLength)
	}
	if c.SoftLength <= c.MinLength {
		return fmt.Errorf("soft_length (%d) must exceed min_length (%d)", c.SoftLength, c.MinLength)
	}
	if c.HardLength < c.SoftLength {
		return fmt.Errorf("hard_length (%d) must be at least soft_length (%d)", c.HardLength, c.SoftLength)
	}
	return nil
}

// Validate checks the engine selection and its required settings.
func (c *EngineConfig) Validate() error {
	validEngines := []string{EngineOpenAI, EngineCommand, EngineMock}
	c.Kind = strings.ToLower(c.Kind)
	if !slices.Contains(validEngines, c.Kind) {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Kind, validEngines)
	}

	c.Format = strings.ToLower(c.Format)
	if c.Format != "pcm" && c.Format != "wav" {
		return fmt.Errorf("invalid format '%s': must be pcm or wav", c.Format)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative, got %d", c.RequestsPerMinute)
	}

	switch c.Kind {
	case EngineOpenAI:
		if c.BaseURL == "" {
			return fmt.Errorf("base_url cannot be empty")
		}
		if c.Model == "" {
			return fmt.Errorf("model cannot be empty")
		}
	case EngineCommand:
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("command cannot be empty for the command engine")
		}
	}
	return nil
}

// Validate checks the output format.
func (c *AudioConfig) Validate() error {
	validSampleRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	if !slices.Contains(validSampleRates, c.SampleRate) {
		return fmt.Errorf("invalid sample rate %d: must be one of %v", c.SampleRate, validSampleRates)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	return nil
}
