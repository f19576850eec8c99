package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// TestDefault tests that the default configuration is valid.
func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if cfg.Engine.Kind != EngineOpenAI {
		t.Errorf("Default engine should be openai, got %s", cfg.Engine.Kind)
	}
	if cfg.QueueCapacity != 10 {
		t.Errorf("Expected queue capacity 10, got %d", cfg.QueueCapacity)
	}
	if cfg.RequestTimeout != 15*time.Second || cfg.SaveTimeout != 10*time.Second {
		t.Errorf("Unexpected timeouts: %v / %v", cfg.RequestTimeout, cfg.SaveTimeout)
	}
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:    "empty voice",
			modify:  func(c *Config) { c.Voice = " " },
			wantErr: true,
			errMsg:  "voice cannot be empty",
		},
		{
			name:    "speed too low",
			modify:  func(c *Config) { c.Speed = 0.25 },
			wantErr: true,
			errMsg:  "speed must be between",
		},
		{
			name:    "speed too high",
			modify:  func(c *Config) { c.Speed = 101 },
			wantErr: true,
			errMsg:  "speed must be between",
		},
		{
			name:    "zero queue capacity",
			modify:  func(c *Config) { c.QueueCapacity = 0 },
			wantErr: true,
			errMsg:  "queue_capacity",
		},
		{
			name:    "negative save timeout",
			modify:  func(c *Config) { c.SaveTimeout = -time.Second },
			wantErr: true,
			errMsg:  "save_timeout must be positive",
		},
		{
			name:    "soft below min",
			modify:  func(c *Config) { c.Sentence.SoftLength = 10 },
			wantErr: true,
			errMsg:  "soft_length",
		},
		{
			name:    "hard below soft",
			modify:  func(c *Config) { c.Sentence.HardLength = 100 },
			wantErr: true,
			errMsg:  "hard_length",
		},
		{
			name:    "invalid engine",
			modify:  func(c *Config) { c.Engine.Kind = "espeak" },
			wantErr: true,
			errMsg:  "invalid engine",
		},
		{
			name:   "engine kind is case insensitive",
			modify: func(c *Config) { c.Engine.Kind = "MOCK" },
		},
		{
			name:    "command engine needs command",
			modify:  func(c *Config) { c.Engine.Kind = EngineCommand },
			wantErr: true,
			errMsg:  "command cannot be empty",
		},
		{
			name:    "invalid format",
			modify:  func(c *Config) { c.Engine.Format = "mp3" },
			wantErr: true,
			errMsg:  "invalid format",
		},
		{
			name:    "invalid sample rate",
			modify:  func(c *Config) { c.Audio.SampleRate = 12345 },
			wantErr: true,
			errMsg:  "invalid sample rate",
		},
		{
			name:    "too many channels",
			modify:  func(c *Config) { c.Audio.Channels = 6 },
			wantErr: true,
			errMsg:  "channels must be 1 or 2",
		},
		{
			name:    "bad compression level",
			modify:  func(c *Config) { c.Cache.CompressionLevel = 40 },
			wantErr: true,
			errMsg:  "compression_level",
		},
		{
			name: "cache limits ignored when disabled",
			modify: func(c *Config) {
				c.Cache.Enabled = false
				c.Cache.MemoryEntries = 0
			},
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
			errMsg:  "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

// TestLoad tests the layering of file, viper, and environment values.
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speakstream.yml")
	data := `voice: nova
speed: 1.5
request_timeout: 5s
sentence:
  min_length: 20
engine:
  kind: mock
cache:
  enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}

	t.Setenv("SPEAKSTREAM_SPEED", "2")
	t.Setenv("SPEAKSTREAM_ENGINE_MODEL", "tts-1-hd")
	t.Setenv("SPEAKSTREAM_NATS_URL", "nats://localhost:4222")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Voice != "nova" {
		t.Errorf("Expected voice from file, got %q", cfg.Voice)
	}
	if cfg.Speed != 2 {
		t.Errorf("Expected env to override speed, got %v", cfg.Speed)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("Expected 5s request timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.SaveTimeout != 10*time.Second {
		t.Errorf("Expected default save timeout, got %v", cfg.SaveTimeout)
	}
	if cfg.Sentence.MinLength != 20 || cfg.Sentence.HardLength != 300 {
		t.Errorf("Expected merged sentence config, got %+v", cfg.Sentence)
	}
	if cfg.Engine.Kind != EngineMock || cfg.Engine.Model != "tts-1-hd" {
		t.Errorf("Unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Cache.Enabled {
		t.Error("Expected cache disabled from file")
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("Expected NATS URL from env, got %q", cfg.NATS.URL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("SPEAKSTREAM_QUEUE_CAPACITY", "0")

	if _, err := Load(nil); err == nil {
		t.Error("Expected validation error")
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("SPEAKSTREAM_SPEED", "fast")

	if _, err := Load(viper.New()); err == nil {
		t.Error("Expected parse error")
	}
}
