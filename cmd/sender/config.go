package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"streamcore/internal/wire"
)

// config holds the sender CLI's parsed arguments, matching spec.md §6.3:
// sender [--mtu <MTU>] [-o <output>] [-v] <port> <y4m>
type config struct {
	mtu     int
	output  string
	verbose bool
	mdns    bool
	dscp    int

	port int
	y4m  string
}

func parseFlags(args []string) (*config, error) {
	fs := flag.NewFlagSet("sender", flag.ContinueOnError)
	mtu := fs.Int("mtu", wire.MaxMTU, "UDP MTU in bytes, must be within [512, 1500]")
	output := fs.String("o", "", "sender stats output file (best-effort)")
	verbose := fs.Bool("v", false, "verbose (debug-level) logging")
	mdns := fs.Bool("mdns", false, "advertise this sender over mDNS")
	dscp := fs.Int("dscp", 0, "DSCP code point to mark outgoing datagrams with")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })

	cfg := &config{mtu: *mtu, output: *output, verbose: *verbose, mdns: *mdns, dscp: *dscp}
	applyEnvOverrides(cfg, set)

	rest := fs.Args()
	if len(rest) != 2 {
		return nil, fmt.Errorf("usage: sender [--mtu <MTU>] [-o <output>] [-v] <port> <y4m>")
	}
	port, err := strconv.Atoi(rest[0])
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", rest[0], err)
	}
	if port < 0 || port > math.MaxUint16 {
		return nil, fmt.Errorf("port %d does not fit in 16 bits", port)
	}
	cfg.port = port
	cfg.y4m = rest[1]

	if err := wire.ValidateMTU(cfg.mtu); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps STREAMCORE_SENDER_* environment variables onto
// the config, unless the corresponding flag was explicitly set (flag
// wins over environment).
func applyEnvOverrides(cfg *config, set map[string]struct{}) {
	get := func(k string) (string, bool) {
		v, ok := os.LookupEnv(k)
		return strings.TrimSpace(v), ok
	}
	if _, ok := set["mtu"]; !ok {
		if v, ok := get("STREAMCORE_SENDER_MTU"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.mtu = n
			}
		}
	}
	if _, ok := set["o"]; !ok {
		if v, ok := get("STREAMCORE_SENDER_OUTPUT"); ok {
			cfg.output = v
		}
	}
	if _, ok := set["mdns"]; !ok {
		if v, ok := get("STREAMCORE_SENDER_MDNS"); ok {
			cfg.mdns = parseBool(v, cfg.mdns)
		}
	}
	if _, ok := set["dscp"]; !ok {
		if v, ok := get("STREAMCORE_SENDER_DSCP"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.dscp = n
			}
		}
	}
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
