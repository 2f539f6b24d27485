// Package network provides SOCKS5 proxy dialing for the snapshot store
// and the event sink.
package network

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// Dialer opens connections through a SOCKS5 proxy. Construct with
// NewSOCKS5Dialer; the zero value is not usable.
type Dialer struct {
	addr     string
	upstream proxy.Dialer
}

// NewSOCKS5Dialer creates a Dialer for the unauthenticated proxy at
// host:port. Returns nil with no error when host is empty, meaning no
// proxy is configured.
func NewSOCKS5Dialer(host string, port int) (*Dialer, error) {
	if host == "" {
		return nil, nil
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	upstream, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", addr, err)
	}
	return &Dialer{addr: addr, upstream: upstream}, nil
}

// Addr returns the proxy address in host:port form.
func (d *Dialer) Addr() string {
	return d.addr
}

// Dial opens a connection to addr through the proxy.
func (d *Dialer) Dial(network, addr string) (net.Conn, error) {
	return d.upstream.Dial(network, addr)
}

// DialContext opens a connection to addr through the proxy, honoring ctx
// cancellation when the underlying implementation supports it.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.upstream.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return d.upstream.Dial(network, addr)
}
