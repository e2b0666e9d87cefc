// Command sender reads a YUV4MPEG2 file, encodes it, and streams it to a
// single receiver over UDP (spec.md §1, §6.2, §6.3).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"streamcore/internal/codec"
	"streamcore/internal/discovery"
	"streamcore/internal/logging"
	"streamcore/internal/metrics"
	"streamcore/internal/netudp"
	"streamcore/internal/sender"
	"streamcore/internal/source"
	"streamcore/internal/stats"
	"streamcore/internal/wire"
)

func main() {
	if err := run(); err != nil {
		logging.L().Error("sender_fatal", "error", err)
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

	sock, err := netudp.Listen(cfg.port)
	if err != nil {
		return err
	}
	defer sock.Close()

	stopMDNS, err := discovery.Advertise(context.Background(), cfg.mdns, "", cfg.port, []string{"role=sender"})
	if err != nil {
		logging.L().Warn("mdns_advertise_failed", "error", err)
	} else {
		defer stopMDNS()
	}

	logging.L().Info("sender_listening", "port", cfg.port, "mtu", cfg.mtu)
	peerAddr, cfgMsg, err := waitForConfig(sock)
	if err != nil {
		return err
	}
	if err := sock.Connect(peerAddr); err != nil {
		return fmt.Errorf("sender: connect to %v: %w", peerAddr, err)
	}
	if cfg.dscp != 0 {
		if err := sock.SetDSCP(cfg.dscp); err != nil {
			logging.L().Warn("dscp_set_failed", "error", err)
		}
	}
	logging.L().Info("session_started", "peer", peerAddr.String(),
		"width", cfgMsg.Width, "height", cfgMsg.Height,
		"frame_rate", cfgMsg.FrameRate, "target_bitrate", cfgMsg.TargetBitrate)

	enc, err := codec.NewFlateEncoder(int(cfgMsg.Width), int(cfgMsg.Height), cfgMsg.FrameRate)
	if err != nil {
		return fmt.Errorf("sender: init encoder: %w", err)
	}
	defer enc.Close()

	src, err := source.Open(cfg.y4m, int(cfgMsg.Width), int(cfgMsg.Height))
	if err != nil {
		return err
	}
	defer src.Close()

	var statsWriter *stats.SenderWriter
	if cfg.output != "" {
		statsWriter, err = stats.NewSenderWriter(cfg.output)
		if err != nil {
			return err
		}
		defer statsWriter.Close()
	}

	engine, err := sender.New(sock, enc, src, cfg.mtu, cfgMsg.FrameRate, cfgMsg.TargetBitrate, statsWriter)
	if err != nil {
		return err
	}

	metricsSrv := metrics.StartHTTP(":0")
	defer metricsSrv.Close()

	return engine.Run(context.Background())
}

// waitForConfig implements spec.md §6.2 step 1: bind and wait for the
// first datagram that parses as a CONFIG control message.
func waitForConfig(sock *netudp.Socket) (peer net.Addr, cfgMsg wire.Config, err error) {
	buf := make([]byte, 2048)
	for {
		n, from, rerr := sock.TryRead(buf)
		if rerr == netudp.ErrWouldBlock {
			time.Sleep(2 * time.Millisecond)
			continue
		}
		if rerr != nil {
			return nil, wire.Config{}, rerr
		}
		msg, ok := wire.ParseControl(buf[:n])
		if !ok || msg.Type != wire.MsgConfig {
			continue
		}
		return from, msg.Config, nil
	}
}
