package discovery

import (
	"context"
	stderrors "errors"
	"net/netip"
	"time"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/netscanner/internal/logging"
	"github.com/anstrom/netscanner/internal/metrics"
)

const hostStateUp = "up"

// nmapMinTimeout is the smallest budget an nmap run gets. Starting the binary
// alone can take longer than a typical ping timeout.
const nmapMinTimeout = 3 * time.Second

// pingRunner runs a host discovery scan and returns the hosts nmap saw.
type pingRunner func(ctx context.Context, options ...nmap.Option) ([]nmap.Host, error)

func runNmap(ctx context.Context, options ...nmap.Option) ([]nmap.Host, error) {
	scanner, err := nmap.NewScanner(ctx, options...)
	if err != nil {
		return nil, err
	}

	result, warnings, err := scanner.Run()
	if warnings != nil && len(*warnings) > 0 {
		logging.Debug("nmap ping scan completed with warnings", "warnings", *warnings)
	}
	if err != nil {
		return nil, err
	}
	return result.Hosts, nil
}

// NmapProber checks reachability with an nmap ping scan (-sn). Unprivileged
// nmap falls back to TCP connect pings, so it works without raw sockets.
type NmapProber struct {
	run        pingRunner
	metrics    *metrics.PrometheusMetrics
	minTimeout time.Duration
}

// NewNmapProber creates an nmap-backed prober.
func NewNmapProber(m *metrics.PrometheusMetrics) *NmapProber {
	return &NmapProber{run: runNmap, metrics: m, minTimeout: nmapMinTimeout}
}

// Method implements Prober.
func (p *NmapProber) Method() string {
	return MethodNmap
}

// Check implements Prober.
func (p *NmapProber) Check(ctx context.Context, host netip.Addr, timeout time.Duration) Reachability {
	r := p.check(ctx, host, timeout)
	record(p.metrics, MethodNmap, r)
	return r
}

func (p *NmapProber) check(ctx context.Context, host netip.Addr, timeout time.Duration) Reachability {
	if !host.IsValid() {
		return Inconclusive
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	budget := max(timeout, p.minTimeout)

	scanCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	hosts, err := p.run(scanCtx, buildNmapOptions(host.String(), timeout)...)
	if err != nil {
		// A run cut short says nothing about the host.
		if ctx.Err() == nil && stderrors.Is(scanCtx.Err(), context.DeadlineExceeded) {
			logging.Debug("nmap ping scan hit its deadline", "host", host.String(), "budget", budget)
			return Inconclusive
		}
		if isPermissionError(err) {
			return PermissionDenied
		}
		logging.ErrorDiscovery("nmap ping scan failed", host.String(), err)
		return Inconclusive
	}

	for i := range hosts {
		if hosts[i].Status.State == hostStateUp {
			logging.InfoDiscovery("nmap ping scan reports host up", host.String(), "reason", hosts[i].Status.Reason)
			return Reachable
		}
	}
	return Unreachable
}

// buildNmapOptions constructs nmap options for a single-host ping scan.
func buildNmapOptions(target string, timeout time.Duration) []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithPingScan(), // Host discovery only, no port scan
	}

	if timeout <= 5*time.Second {
		options = append(options, nmap.WithTimingTemplate(nmap.TimingAggressive))
	} else {
		options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal))
	}

	return options
}
