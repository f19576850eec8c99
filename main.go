// Package main provides the entry point for the speakstream CLI.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/dgnsrekt/speakstream/internal/config"
	"github.com/dgnsrekt/speakstream/internal/speakstream"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	cfg        config.Config
	logCloser  = func() error { return nil }

	// flag values; applied over the loaded config only when set
	voice       string
	speed       float64
	engineKind  string
	format      string
	queueCap    int
	metricsAddr string
	logLevel    string

	rootCmd = &cobra.Command{
		Use:   "speakstream [TEXT...]",
		Short: "Speak streamed text as it arrives",
		Long: "\nSpeak text sentence by sentence while it is still being written.\n\n" +
			"Text comes from arguments, from a pipe, or from an interactive prompt where\n" +
			"each line is spoken as it is entered and an empty line stops speech.",
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		RunE: execute,
	}
)

// loadConfig builds the effective config and sets up logging.
func loadConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &c); err != nil {
		return err
	}
	cfg = c

	closer, err := setupLog(cfg.Log, debug)
	if err != nil {
		return err
	}
	logCloser = closer
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
	}
	return nil
}

// applyFlags overrides c with every flag set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("voice") {
		c.Voice = voice
	}
	if flags.Changed("speed") {
		c.Speed = speed
	}
	if flags.Changed("engine") {
		c.Engine.Kind = engineKind
	}
	if flags.Changed("format") {
		c.Engine.Format = format
	}
	if flags.Changed("queue") {
		c.QueueCapacity = queueCap
	}
	if flags.Changed("metrics-addr") {
		c.Metrics.Addr = metricsAddr
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, nil)
	if err != nil {
		log.Error("Unable to start speech pipeline", "err", err)
		return err
	}
	defer p.Close() //nolint:errcheck

	watchConfig(cmd, p.stream)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr, p.metrics) })
	}
	g.Go(func() error {
		defer stop()
		return speak(gctx, p.stream, args)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// speak feeds input to the stream and waits for it to finish playing.
func speak(ctx context.Context, s *speakstream.Stream, args []string) error {
	// Barge in when interrupted.
	context.AfterFunc(ctx, s.StopSpeech)

	switch {
	case len(args) > 0:
		if err := speakText(ctx, s, strings.Join(args, " ")); err != nil {
			return err
		}
	default:
		pipe, err := stdinIsPipe()
		if err != nil {
			return err
		}
		if pipe {
			err = streamInput(ctx, s, os.Stdin)
		} else if term.IsTerminal(int(os.Stdin.Fd())) {
			err = interactive(ctx, s, os.Stdin, os.Stdout)
		} else {
			err = errors.New("nothing to speak: pass text as arguments or pipe it in")
		}
		if err != nil {
			return err
		}
	}
	return s.Wait(ctx)
}

func speakText(ctx context.Context, s *speakstream.Stream, text string) error {
	if _, err := s.AddToken(ctx, text); err != nil {
		return err
	}
	_, err := s.CompleteSentence(ctx)
	return err
}

// streamInput forwards r word by word, the way a token stream arrives.
func streamInput(ctx context.Context, s *speakstream.Stream, r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		word, err := br.ReadString(' ')
		if word != "" {
			if _, addErr := s.AddToken(ctx, word); addErr != nil {
				return addErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("unable to read input: %w", err)
		}
	}
	_, err := s.CompleteSentence(ctx)
	return err
}

// interactive speaks each line as one turn. An empty line stops speech.
// Lines are read on their own goroutine so a stop is seen even while a long
// turn waits on a full queue.
func interactive(ctx context.Context, s *speakstream.Stream, r io.Reader, w io.Writer) error {
	fmt.Fprintln(w, "Type text to speak. An empty line stops speech, Ctrl+D exits.")

	var (
		mu    sync.Mutex
		lines []string
	)
	ready := make(chan struct{}, 1)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			mu.Lock()
			if line == "" {
				// Turns typed before the stop go with it.
				lines = nil
			} else {
				lines = append(lines, line)
			}
			mu.Unlock()
			if line == "" {
				s.StopSpeech()
			}
			select {
			case ready <- struct{}{}:
			default:
			}
		}
		errs <- scanner.Err()
	}()

	next := func() (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		if len(lines) == 0 {
			return "", false
		}
		line := lines[0]
		lines = lines[1:]
		return line, true
	}
	speakQueued := func() error {
		for line, ok := next(); ok; line, ok = next() {
			if err := speakText(ctx, s, line); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		if err := speakQueued(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		case err := <-errs:
			if err != nil {
				return fmt.Errorf("unable to read input: %w", err)
			}
			return speakQueued()
		}
	}
}

// watchConfig applies voice and speed changes from the config file to s.
func watchConfig(cmd *cobra.Command, s *speakstream.Stream) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		c, err := config.Load(viper.GetViper())
		if err == nil {
			err = applyFlags(cmd, &c)
		}
		if err != nil {
			log.Warn("Ignoring invalid configuration change", "path", e.Name, "err", err)
			return
		}
		if err := s.SetVoice(c.Voice); err != nil {
			log.Warn("Unable to apply voice", "err", err)
		}
		if err := s.SetSpeed(c.Speed); err != nil {
			log.Warn("Unable to apply speed", "err", err)
		}
		log.Info("Configuration reloaded", "voice", c.Voice, "speed", c.Speed)
	})
	viper.WatchConfig()
}

func main() {
	err := rootCmd.Execute()
	_ = logCloser()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", configFile, "config file")
	flags.BoolVar(&debug, "debug", false, "log to stderr at debug level")
	flags.StringVar(&voice, "voice", d.Voice, "voice identifier")
	flags.Float64Var(&speed, "speed", d.Speed, "playback speed multiplier (0.5-100)")
	flags.StringVarP(&engineKind, "engine", "e", d.Engine.Kind, "synthesis engine (openai, command, mock)")
	flags.StringVar(&format, "format", d.Engine.Format, "audio format requested from the engine (pcm, wav)")
	flags.IntVar(&queueCap, "queue", d.QueueCapacity, "sentences that may await playback at once")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&logLevel, "log-level", d.Log.Level, "log level (debug, info, warn, error)")

	rootCmd.AddCommand(configCmd, serveCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "speakstream")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "speakstream")}, dirs...)
	}

	if c := os.Getenv("SPEAKSTREAM_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("speakstream")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		configFile = used
		return
	}
	configFile = filepath.Join(dirs[0], "speakstream.yml")
}
