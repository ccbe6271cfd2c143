// Package discovery decides whether a host is worth port scanning. It offers
// an ICMP echo prober and an nmap ping-scan prober behind a common interface,
// and the one-shot advisory printed when raw sockets are not permitted.
package discovery

//go:generate mockgen -destination=mocks/mock_prober.go -package=mocks github.com/anstrom/netscanner/internal/discovery Prober

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"go.uber.org/atomic"

	"github.com/anstrom/netscanner/internal/errors"
	"github.com/anstrom/netscanner/internal/metrics"
)

const (
	// MethodICMP selects the raw-socket ICMP echo prober.
	MethodICMP = "icmp"
	// MethodNmap selects the nmap ping-scan prober.
	MethodNmap = "nmap"

	// DefaultTimeout bounds a single reachability check.
	DefaultTimeout = time.Second

	// SudoAdvisory is printed once per run when pinging is not permitted.
	SudoAdvisory = "Try using sudo or run as administrator to use ping for faster network responses"
)

// Reachability is the outcome of a reachability check.
type Reachability int

const (
	// Reachable means the host answered.
	Reachable Reachability = iota
	// Unreachable means no answer arrived within the timeout.
	Unreachable
	// PermissionDenied means the probe could not be sent for lack of privileges.
	PermissionDenied
	// Inconclusive means the probe failed for any other reason.
	Inconclusive
)

// String returns the metrics and logging label of r.
func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	case PermissionDenied:
		return "permission_denied"
	case Inconclusive:
		return "inconclusive"
	default:
		return fmt.Sprintf("reachability(%d)", int(r))
	}
}

// ShouldScan reports whether the host must still be port scanned. Only a
// definite Unreachable skips the host.
func (r Reachability) ShouldScan() bool {
	return r != Unreachable
}

// Prober checks whether a host is reachable.
type Prober interface {
	// Check never blocks longer than timeout.
	Check(ctx context.Context, host netip.Addr, timeout time.Duration) Reachability
	// Method names the probing technique.
	Method() string
}

// New returns the prober for method. m may be nil.
func New(method string, m *metrics.PrometheusMetrics) (Prober, error) {
	switch method {
	case MethodICMP, "":
		return NewICMPProber(m), nil
	case MethodNmap:
		return NewNmapProber(m), nil
	default:
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			"unknown discovery method", "discovery.method", method)
	}
}

// WarningLatch prints the sudo advisory at most once for the scan tree that
// owns it.
type WarningLatch struct {
	printed *atomic.Bool
	out     io.Writer
}

// NewWarningLatch creates a latch writing to stderr.
func NewWarningLatch() *WarningLatch {
	return NewWarningLatchTo(os.Stderr)
}

// NewWarningLatchTo creates a latch writing to w.
func NewWarningLatchTo(w io.Writer) *WarningLatch {
	return &WarningLatch{printed: atomic.NewBool(false), out: w}
}

// Warn prints the advisory if no earlier call did and reports whether this
// call printed it.
func (l *WarningLatch) Warn() bool {
	if l == nil || !l.printed.CompareAndSwap(false, true) {
		return false
	}
	fmt.Fprintln(l.out, SudoAdvisory)
	return true
}

// Fired reports whether the advisory has been printed.
func (l *WarningLatch) Fired() bool {
	return l != nil && l.printed.Load()
}

func record(m *metrics.PrometheusMetrics, method string, r Reachability) {
	if m != nil {
		m.IncrementReachability(method, r.String())
	}
}
