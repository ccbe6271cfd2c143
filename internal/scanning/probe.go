package scanning

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// DefaultConnectTimeout bounds a single TCP connection attempt.
const DefaultConnectTimeout = 3 * time.Second

// ProbeResult is the outcome of one connection attempt.
type ProbeResult int

const (
	// Closed means every resolved address refused or timed out.
	Closed ProbeResult = iota
	// Open means a TCP connection was established.
	Open
	// ResolutionFailed means host:port could not be resolved. Reported as closed.
	ResolutionFailed
)

// String returns the metrics label for r.
func (r ProbeResult) String() string {
	switch r {
	case Open:
		return "open"
	case ResolutionFailed:
		return "resolution_failed"
	default:
		return "closed"
	}
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver turns a host into addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Connector probes TCP ports with a fixed per-attempt timeout.
type Connector struct {
	Dialer   Dialer
	Resolver Resolver
	Timeout  time.Duration
}

// NewConnector returns a Connector using the system dialer and resolver.
func NewConnector(timeout time.Duration) *Connector {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Connector{
		Dialer:   &net.Dialer{},
		Resolver: net.DefaultResolver,
		Timeout:  timeout,
	}
}

// ConnectProbe attempts one TCP connection to host:port.
func ConnectProbe(ctx context.Context, dialer Dialer, host string, port uint16, timeout time.Duration) ProbeResult {
	c := &Connector{Dialer: dialer, Resolver: net.DefaultResolver, Timeout: timeout}
	return c.Probe(ctx, host, port)
}

// Probe resolves host and dials each address in turn, stopping at the first
// that accepts. The connection is closed immediately.
func (c *Connector) Probe(ctx context.Context, host string, port uint16) ProbeResult {
	addrs, err := c.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil || len(addrs) == 0 {
		return ResolutionFailed
	}

	portText := strconv.Itoa(int(port))
	for _, addr := range addrs {
		if ctx.Err() != nil {
			return Closed
		}

		dialCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		conn, err := c.Dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(addr.Unmap().String(), portText))
		cancel()
		if err != nil {
			continue
		}
		_ = conn.Close()
		return Open
	}
	return Closed
}
