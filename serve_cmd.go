package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/speakstream/internal/bus"
	"github.com/dgnsrekt/speakstream/internal/speakstream"
)

var natsURL string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Speak text received over NATS",
	Long: "\nSubscribe to <prefix>.input for text and <prefix>.stop for interrupts, and\n" +
		"publish state changes on <prefix>.state. Runs until interrupted.",
	Example: "speakstream serve --nats nats://localhost:4222\n" +
		"nats pub speakstream.input '{\"type\":\"token\",\"text\":\"Hello there. \"}'\n" +
		"nats pub speakstream.stop ''",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("nats") {
			cfg.NATS.URL = natsURL
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&natsURL, "nats", "", "NATS server url (overrides nats.url)")
}

func serve(ctx context.Context) error {
	conn, err := bus.Connect(cfg.NATS.URL, log.Default().WithPrefix("bus"))
	if err != nil {
		return err
	}
	defer conn.Close()

	var bridge atomic.Pointer[bus.Bridge]
	onState := func(from, to speakstream.State) {
		if b := bridge.Load(); b != nil {
			b.PublishState(from.String(), to.String())
		}
	}

	p, err := newPipeline(ctx, cfg, onState)
	if err != nil {
		log.Error("Unable to start speech pipeline", "err", err)
		return err
	}
	defer p.Close() //nolint:errcheck

	b := bus.NewBridge(ctx, conn, p.stream, cfg.NATS.SubjectPrefix, log.Default().WithPrefix("bus"))
	if err := b.Start(); err != nil {
		return err
	}
	defer b.Close()
	bridge.Store(b)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr, p.metrics) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
