package scanning

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sync"

	"github.com/anstrom/netscanner/internal/discovery"
	"github.com/anstrom/netscanner/internal/errors"
	"github.com/anstrom/netscanner/internal/ports"
	"github.com/anstrom/netscanner/internal/workers"
)

const (
	jobTypeHost  = "host"
	jobTypeProbe = "probe"
)

// ScanHost probes every candidate port of host on the shared pool and reports
// the open ones. A host the reachability check calls unreachable is skipped
// without any connection attempt. At most Pool.Size() probes of the host are
// unfinished at once; candidates are drawn lazily as probes complete. When
// ScanHost runs inside a pool job, ctx must carry that job's slot (see
// workers.JobContext).
func ScanHost(ctx context.Context, sc *ScanContext, host netip.Addr) HostResult {
	target := host.String()
	log := sc.logger().WithTarget(target)
	result := HostResult{Host: host, Status: StatusUp}

	sc.trackActiveHost(1)
	defer sc.trackActiveHost(-1)

	if ctx.Err() != nil {
		result.Status = StatusCanceled
		sc.countHost(result.Status)
		return result
	}

	if sc.Prober != nil {
		reach := sc.Prober.Check(ctx, host, sc.PingTimeout)
		result.Reachability = &reach

		switch reach {
		case discovery.Reachable:
			log.InfoDiscovery("Host answered reachability check", target, "method", sc.Prober.Method())
		case discovery.Unreachable:
			log.WithError(errors.ErrHostUnreachable(target)).Debug("Skipping host")
			result.Status = StatusDown
			sc.countHost(result.Status)
			return result
		case discovery.PermissionDenied:
			log.WithError(errors.NewScanErrorWithTarget(errors.CodePermission,
				"reachability check not permitted", target)).Debug("Scanning anyway")
			sc.Latch.Warn()
		case discovery.Inconclusive:
			log.Debug("Reachability check inconclusive, scanning anyway")
		}
	}

	var (
		mu          sync.Mutex
		open        []uint16
		interrupted bool
	)
	group := sc.Pool.NewLimitedGroup(sc.Pool.Size())

	for port := range ports.Candidates(sc.ScanAllPorts) {
		if ctx.Err() != nil {
			break
		}
		job := workers.NewFuncJob(fmt.Sprintf("%s:%d", target, port), jobTypeProbe, func(jobCtx context.Context) error {
			probeCtx, cancel := workers.JobContext(ctx, jobCtx)
			defer cancel()

			r := sc.Connector.Probe(probeCtx, target, port)
			if err := probeCtx.Err(); err != nil {
				// Cut short; the port was never really tried.
				return err
			}
			sc.countProbe(r)
			if r == ResolutionFailed {
				log.Debug("Address resolution failed", "port", port)
			}
			if r != Open {
				return nil
			}
			mu.Lock()
			open = append(open, port)
			mu.Unlock()
			return nil
		})
		if err := group.SubmitContext(ctx, job); err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("Failed to submit port probe")
			}
			interrupted = true
			break
		}
		result.Probed++
	}

	if err := group.Wait(ctx); err != nil || ctx.Err() != nil || interrupted || group.Failed() > 0 {
		result.Status = StatusCanceled
		sc.countHost(result.Status)
		return result
	}

	slices.Sort(open)
	result.OpenPorts = slices.Compact(open)
	sc.countHost(result.Status)

	log.Debug("Host scan finished", "probed", result.Probed, "open_ports", len(result.OpenPorts))

	if err := sc.report(host, result.OpenPorts); err != nil {
		log.WithError(err).Error("Failed to write host report")
	}
	return result
}
