// Package discovery advertises a running sender over mDNS so a receiver
// on the same network segment can find its port without an out-of-band
// channel. This is discovery, not the session negotiation spec.md's
// Non-goals exclude: the CONFIG handshake over the data socket remains
// the only thing that configures a session.
package discovery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

const serviceType = "_streamcore._udp"

// Advertise registers a sender instance via mDNS and returns a cleanup
// function, safe to call even when disabled.
func Advertise(ctx context.Context, enabled bool, name string, port int, meta []string) (func(), error) {
	if !enabled {
		return func() {}, nil
	}
	if name == "" {
		host, _ := os.Hostname()
		name = fmt.Sprintf("streamcore-%s", host)
	}
	svc, err := zeroconf.Register(name, serviceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
