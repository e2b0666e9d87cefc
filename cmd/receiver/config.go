package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"streamcore/internal/receiver"
)

// config holds the receiver CLI's parsed arguments, matching spec.md
// §6.4: receiver [--fps <fps>] [--cbr <kbps>] [--lazy {0,1,2}] [-o
// <output>] [-v] <host> <port> <width> <height>
type config struct {
	fps  int
	cbr  int
	lazy receiver.LazyLevel

	output  string
	verbose bool

	host   string
	port   int
	width  int
	height int
}

func parseFlags(args []string) (*config, error) {
	fs := flag.NewFlagSet("receiver", flag.ContinueOnError)
	fps := fs.Int("fps", 30, "requested frame rate")
	cbr := fs.Int("cbr", 0, "target bitrate in kbps (0 = encoder default)")
	lazy := fs.Int("lazy", 0, "lazy level: 0=decode+display 1=decode only 2=neither")
	output := fs.String("o", "", "receiver stats output file (best-effort)")
	verbose := fs.Bool("v", false, "verbose (debug-level) logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })

	cfg := &config{fps: *fps, cbr: *cbr, lazy: receiver.LazyLevel(*lazy), output: *output, verbose: *verbose}
	applyEnvOverrides(cfg, set)

	if cfg.lazy < receiver.LazyDecodeDisplay || cfg.lazy > receiver.LazyNone {
		return nil, fmt.Errorf("invalid lazy level %d, must be 0, 1, or 2", cfg.lazy)
	}

	rest := fs.Args()
	if len(rest) != 4 {
		return nil, fmt.Errorf("usage: receiver [--fps <fps>] [--cbr <kbps>] [--lazy {0,1,2}] [-o <output>] [-v] <host> <port> <width> <height>")
	}
	cfg.host = rest[0]
	var err error
	if cfg.port, err = strconv.Atoi(rest[1]); err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", rest[1], err)
	}
	if cfg.width, err = strconv.Atoi(rest[2]); err != nil {
		return nil, fmt.Errorf("invalid width %q: %w", rest[2], err)
	}
	if cfg.height, err = strconv.Atoi(rest[3]); err != nil {
		return nil, fmt.Errorf("invalid height %q: %w", rest[3], err)
	}
	for _, v := range []struct {
		name string
		val  int
	}{{"port", cfg.port}, {"fps", cfg.fps}, {"width", cfg.width}, {"height", cfg.height}} {
		if v.val < 0 || v.val > math.MaxUint16 {
			return nil, fmt.Errorf("%s %d does not fit in 16 bits", v.name, v.val)
		}
	}
	if cfg.cbr < 0 || int64(cfg.cbr) > math.MaxUint32 {
		return nil, fmt.Errorf("cbr %d does not fit in 32 bits", cfg.cbr)
	}
	return cfg, nil
}

// applyEnvOverrides maps STREAMCORE_RECEIVER_* environment variables onto
// the config, unless the corresponding flag was explicitly set.
func applyEnvOverrides(cfg *config, set map[string]struct{}) {
	get := func(k string) (string, bool) {
		v, ok := os.LookupEnv(k)
		return strings.TrimSpace(v), ok
	}
	if _, ok := set["fps"]; !ok {
		if v, ok := get("STREAMCORE_RECEIVER_FPS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.fps = n
			}
		}
	}
	if _, ok := set["cbr"]; !ok {
		if v, ok := get("STREAMCORE_RECEIVER_CBR"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.cbr = n
			}
		}
	}
	if _, ok := set["lazy"]; !ok {
		if v, ok := get("STREAMCORE_RECEIVER_LAZY"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.lazy = receiver.LazyLevel(n)
			}
		}
	}
	if _, ok := set["o"]; !ok {
		if v, ok := get("STREAMCORE_RECEIVER_OUTPUT"); ok {
			cfg.output = v
		}
	}
}
