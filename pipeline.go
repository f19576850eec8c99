package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/cache"
	"github.com/dgnsrekt/speakstream/internal/config"
	"github.com/dgnsrekt/speakstream/internal/metrics"
	"github.com/dgnsrekt/speakstream/internal/sentence"
	"github.com/dgnsrekt/speakstream/internal/speakstream"
	"github.com/dgnsrekt/speakstream/internal/transcode"
	"github.com/dgnsrekt/speakstream/internal/tts"
	"github.com/dgnsrekt/speakstream/internal/tts/engines"
)

// pipeline is a running stream plus the resources it owns.
type pipeline struct {
	stream  *speakstream.Stream
	metrics *metrics.Metrics
	cache   *cache.Manager
}

func (p *pipeline) Close() error {
	err := p.stream.Close()
	if p.cache != nil {
		err = errors.Join(err, p.cache.Close())
	}
	return err
}

func newSynthesizer(cfg config.EngineConfig) (tts.Synthesizer, error) {
	switch cfg.Kind {
	case config.EngineOpenAI:
		return engines.NewOpenAIEngine(engines.OpenAIConfig{
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Logger:            log.Default().WithPrefix("openai"),
		}), nil
	case config.EngineCommand:
		return engines.NewCommandEngine(cfg.Command, log.Default().WithPrefix("command"))
	case config.EngineMock:
		return &engines.MockEngine{Delay: 100 * time.Millisecond}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Kind)
	}
}

func newCache(cfg config.CacheConfig) (*cache.Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dir := cfg.Dir
	if dir == "" {
		d, err := gap.NewScope(gap.User, "speakstream").CacheDir()
		if err != nil {
			return nil, fmt.Errorf("unable to find cache directory: %w", err)
		}
		dir = filepath.Join(d, "audio")
	}

	cc := cache.DefaultConfig()
	cc.MemoryEntries = cfg.MemoryEntries
	cc.DiskPath = dir
	cc.DiskCapacity = cfg.DiskCapacity
	cc.CompressionLevel = cfg.CompressionLevel
	return cache.NewManager(cc)
}

// newPipeline wires a stream from configuration.
func newPipeline(ctx context.Context, cfg config.Config, onState func(from, to speakstream.State)) (*pipeline, error) {
	synth, err := newSynthesizer(cfg.Engine)
	if err != nil {
		return nil, err
	}

	format := audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}
	cue, err := audio.LoadCue(cfg.Audio.FallbackCue, format)
	if err != nil {
		return nil, fmt.Errorf("unable to load fallback cue: %w", err)
	}

	var probe audio.DeviceProbe
	if cfg.Audio.DeviceCommand != "" {
		if probe, err = audio.NewCommandProbe(cfg.Audio.DeviceCommand); err != nil {
			return nil, err
		}
	}

	ffmpeg := transcode.New(cfg.FFmpeg.Binary, format.SampleRate, format.Channels, cfg.TranscodeTimeout)

	c, err := newCache(cfg.Cache)
	if err != nil {
		log.Warn("Audio cache disabled", "err", err)
		c = nil
	}

	m := metrics.New()
	opts := speakstream.Options{
		Synthesizer:    synth,
		Transcoder:     ffmpeg,
		Probe:          probe,
		Format:         format,
		AudioFormat:    tts.Format(cfg.Engine.Format),
		Voice:          cfg.Voice,
		Speed:          cfg.Speed,
		QueueCapacity:  cfg.QueueCapacity,
		RequestTimeout: cfg.RequestTimeout,
		SaveTimeout:    cfg.SaveTimeout,
		Sentence: sentence.Options{
			MinLength:  cfg.Sentence.MinLength,
			SoftLength: cfg.Sentence.SoftLength,
			HardLength: cfg.Sentence.HardLength,
		},
		FallbackCue:   cue,
		Metrics:       m,
		Logger:        log.Default().WithPrefix("speakstream"),
		OnStateChange: onState,
	}
	if c != nil {
		opts.Cache = c
	}

	s, err := speakstream.New(ctx, opts)
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, err
	}
	return &pipeline{stream: s, metrics: m, cache: c}, nil
}

// serveMetrics exposes /metrics on addr until ctx ends.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
