package scanning

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/anstrom/netscanner/internal/errors"
	"github.com/anstrom/netscanner/internal/workers"
)

// Run validates req and scans its target with a pool of req.MaxThreads
// workers owned by this call.
func Run(ctx context.Context, req Request, opts Options) (*Summary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch req.Target.Kind {
	case TargetSingle:
		return ScanDevice(ctx, req, opts)
	case TargetRange:
		return ScanRange(ctx, req, opts)
	case TargetSubnet:
		return ScanSubnet(ctx, req, opts)
	default:
		return nil, errors.NewTargetError(errors.CodeValidation,
			fmt.Sprintf("unsupported target kind %s", req.Target.Kind), req.Target.String())
	}
}

// ScanDevice scans a single host with a fresh pool and no output lock.
func ScanDevice(ctx context.Context, req Request, opts Options) (*Summary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	summary, sc, done := begin(req, opts)
	defer done()

	sc.logger().InfoScan("Starting host scan", req.Target.String(),
		"scan_all_ports", req.ScanAllPorts,
		"ping", sc.Prober != nil,
		"max_threads", req.MaxThreads)

	result := ScanHost(ctx, sc, req.Target.Start)
	summary.Hosts = append(summary.Hosts, result)

	return finish(ctx, summary, sc)
}

// ScanRange scans every address of an inclusive range on one shared pool.
func ScanRange(ctx context.Context, req Request, opts Options) (*Summary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return scanTree(ctx, req, opts)
}

// ScanSubnet scans every address of a CIDR block, network and broadcast
// addresses included, on one shared pool.
func ScanSubnet(ctx context.Context, req Request, opts Options) (*Summary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Target.Kind != TargetSubnet {
		return nil, errors.ErrInvalidCIDR(req.Target.String())
	}
	return scanTree(ctx, req, opts)
}

// scanTree submits one host job per address. Every host shares the pool,
// the output lock and the warning latch; pool.Join is the only barrier.
func scanTree(ctx context.Context, req Request, opts Options) (*Summary, error) {
	summary, sc, done := begin(req, opts)
	defer done()
	sc.OutputLock = &sync.Mutex{}

	sc.logger().InfoScan("Starting range scan", req.Target.String(),
		"hosts", req.Target.Count(),
		"scan_all_ports", req.ScanAllPorts,
		"ping", sc.Prober != nil,
		"max_threads", req.MaxThreads)

	var mu sync.Mutex
	results := make([]HostResult, 0, min(req.Target.Count(), uint64(req.MaxThreads)))

	// At most MaxThreads hosts are in flight, each with at most Pool.Size()
	// unfinished probes, so the queue never holds more than MaxThreads²
	// probe jobs however large the range or port set.
	admission := semaphore.NewWeighted(int64(req.MaxThreads))

	for host := range ExpandTarget(req.Target) {
		if err := admission.Acquire(ctx, 1); err != nil {
			break
		}
		job := workers.NewFuncJob(host.String(), jobTypeHost, func(jobCtx context.Context) error {
			defer admission.Release(1)
			hostCtx, cancel := workers.JobContext(ctx, jobCtx)
			defer cancel()
			result := ScanHost(hostCtx, sc, host)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
		if err := sc.Pool.Submit(job); err != nil {
			admission.Release(1)
			return nil, errors.WrapScanErrorWithTarget(errors.CodeScanFailed,
				"failed to submit host scan", host.String(), err)
		}
	}

	// Join ignores ctx so canceled hosts still record their status.
	_ = sc.Pool.Join(context.Background())

	slices.SortFunc(results, func(a, b HostResult) int {
		return a.Host.Compare(b.Host)
	})
	summary.Hosts = results

	return finish(ctx, summary, sc)
}

func begin(req Request, opts Options) (*Summary, *ScanContext, func()) {
	if opts.ScanID == "" {
		opts.ScanID = uuid.New().String()
	}

	pool := workers.New(workers.Config{Size: req.MaxThreads, Metrics: opts.Metrics})
	pool.Start()

	sc := opts.scanContext(req, pool)
	summary := &Summary{
		ScanID:    opts.ScanID,
		Target:    req.Target,
		StartTime: time.Now(),
	}

	done := func() {
		if err := pool.Shutdown(); err != nil {
			sc.logger().WithError(err).Warn("Worker pool did not shut down cleanly")
		}
	}
	return summary, sc, done
}

func finish(ctx context.Context, summary *Summary, sc *ScanContext) (*Summary, error) {
	summary.Duration = time.Since(summary.StartTime)
	summary.PeakQueued = sc.Pool.Stats().PeakQueued
	if sc.Metrics != nil {
		sc.Metrics.RecordScanDuration(summary.Target.Kind.String(), summary.Duration)
	}

	up, down, canceled, open := summary.Stats()
	sc.logger().InfoScan("Scan finished", summary.Target.String(),
		"hosts_up", up,
		"hosts_down", down,
		"hosts_canceled", canceled,
		"open_ports", open,
		"peak_queued", summary.PeakQueued,
		"duration", summary.Duration)

	if err := ctx.Err(); err != nil {
		scanErr := errors.WrapScanErrorWithTarget(errors.CodeCanceled,
			"scan interrupted", summary.Target.String(), err)
		sc.logger().ErrorScan("Scan interrupted", summary.Target.String(), scanErr)
		return summary, scanErr
	}
	return summary, nil
}

// HostByAddr returns the result for addr, if the summary has one.
func (s *Summary) HostByAddr(addr netip.Addr) (HostResult, bool) {
	i := slices.IndexFunc(s.Hosts, func(h HostResult) bool { return h.Host == addr })
	if i < 0 {
		return HostResult{}, false
	}
	return s.Hosts[i], true
}
