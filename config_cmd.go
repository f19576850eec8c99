package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# voice identifier passed to the synthesis engine
voice: "alloy"
# playback speed multiplier (0.5 to 100); anything but 1.0 needs ffmpeg
speed: 1.0
# sentences that may be synthesizing or awaiting playback at once
queue_capacity: 10
# deadline for a synthesis request, and for saving its audio
request_timeout: "15s"
save_timeout: "10s"
transcode_timeout: "30s"

# sentence boundaries, in characters
sentence:
  min_length: 15
  soft_length: 200
  hard_length: 300

# synthesis engine: openai, command, or mock
engine:
  kind: "openai"
  base_url: "https://api.openai.com"
  # api_key: "sk-..."
  model: "tts-1"
  # pcm or wav
  format: "pcm"
  # for the command engine; text is written to stdin, audio read from stdout
  # command: "piper --model en_US-lessac-medium --output_raw"
  requests_per_minute: 0

audio:
  sample_rate: 24000
  channels: 1
  # prints the default output device; a change re-opens the output
  # device_command: "pactl get-default-sink"
  # WAV file played when a sentence cannot be synthesized
  # fallback_cue: "/path/to/cue.wav"

ffmpeg:
  binary: "ffmpeg"

cache:
  enabled: true
  memory_entries: 256
  # dir: "/path/to/cache"
  disk_capacity: 104857600
  compression_level: 3

nats:
  # url: "nats://localhost:4222"
  subject_prefix: "speakstream"

metrics:
  # addr: ":9090"

log:
  level: "info"
  # file: "/path/to/speakstream.log"
`

var printConfig bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the speakstream config file",
	Long:    "\nEdit the speakstream config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.",
	Example: "speakstream config\nspeakstream config --config path/to/config.yml\nspeakstream config --print",
	Args:    cobra.NoArgs,
	// Editing must work even when the current file is invalid.
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if printConfig {
			return loadConfig(cmd)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if printConfig {
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("unable to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}

		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Speakstream", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration as YAML")
}

func ensureConfigFile() error {
	if configFile == "" {
		return errors.New("no config file location")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
