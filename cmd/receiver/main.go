// Command receiver starts a streaming session with a sender, reassembles
// and decodes the incoming video, and optionally displays it (spec.md
// §1, §6.2, §6.4).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"streamcore/internal/codec"
	"streamcore/internal/display"
	"streamcore/internal/logging"
	"streamcore/internal/metrics"
	"streamcore/internal/netudp"
	"streamcore/internal/receiver"
	"streamcore/internal/stats"
	"streamcore/internal/wire"
)

func main() {
	if err := run(); err != nil {
		logging.L().Error("receiver_fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logging.Set(logging.New("text", level, os.Stderr))

	sock, err := netudp.Dial(cfg.host, cfg.port)
	if err != nil {
		return err
	}
	defer sock.Close()

	cfgMsg := wire.Config{
		Width:         uint16(cfg.width),
		Height:        uint16(cfg.height),
		FrameRate:     uint16(cfg.fps),
		TargetBitrate: uint32(cfg.cbr),
	}
	if _, err := sock.TryWrite(cfgMsg.Marshal()); err != nil && err != netudp.ErrWouldBlock {
		return fmt.Errorf("receiver: send CONFIG: %w", err)
	}
	logging.L().Info("session_started", "peer", fmt.Sprintf("%s:%d", cfg.host, cfg.port),
		"width", cfg.width, "height", cfg.height, "fps", cfg.fps, "lazy", cfg.lazy)

	var statsWriter *stats.ReceiverWriter
	if cfg.output != "" {
		statsWriter, err = stats.NewReceiverWriter(cfg.output)
		if err != nil {
			return err
		}
		defer statsWriter.Close()
	}

	var worker *receiver.Worker
	if cfg.lazy <= receiver.LazyDecodeOnly {
		threads := runtime.NumCPU()
		if threads > 4 {
			threads = 4
		}
		dec, err := codec.NewFlateDecoder(cfg.width, cfg.height, threads)
		if err != nil {
			return fmt.Errorf("receiver: init decoder: %w", err)
		}

		var sink display.Sink
		if cfg.lazy == receiver.LazyDecodeDisplay {
			snap, err := display.NewSnapshot("./snapshots", cfg.verbose)
			if err != nil {
				return fmt.Errorf("receiver: init display: %w", err)
			}
			sink = snap
		}

		worker = receiver.NewWorker(dec, sink, statsWriter)
		worker.Start()
		defer worker.Stop()
	}

	metricsSrv := metrics.StartHTTP(":0")
	defer metricsSrv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := receiver.New(sock, cfg.lazy, worker, statsWriter)
	err = engine.Run(ctx)
	if err == context.Canceled {
		logging.L().Info("shutting_down")
		return nil
	}
	return err
}
