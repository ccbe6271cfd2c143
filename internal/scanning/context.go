package scanning

import (
	"net/netip"
	"sync"
	"time"

	"github.com/anstrom/netscanner/internal/discovery"
	"github.com/anstrom/netscanner/internal/logging"
	"github.com/anstrom/netscanner/internal/metrics"
	"github.com/anstrom/netscanner/internal/workers"
)

// Reporter writes the open ports of one host. Callers hold the output lock.
type Reporter interface {
	Report(host netip.Addr, openPorts []uint16) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(host netip.Addr, openPorts []uint16) error

// Report implements Reporter.
func (f ReporterFunc) Report(host netip.Addr, openPorts []uint16) error {
	return f(host, openPorts)
}

// ScanContext is everything a host scan needs, passed explicitly down the
// scan tree. One value is shared by every host of a range scan.
type ScanContext struct {
	Pool       *workers.Pool
	OutputLock *sync.Mutex // nil for single-host scans
	Latch      *discovery.WarningLatch
	Prober     discovery.Prober // nil skips the reachability check
	Reporter   Reporter
	Connector  *Connector

	PingTimeout  time.Duration
	ScanAllPorts bool

	ScanID  string
	Logger  *logging.Logger
	Metrics *metrics.PrometheusMetrics
}

func (sc *ScanContext) logger() *logging.Logger {
	if sc.Logger != nil {
		return sc.Logger
	}
	return logging.Default()
}

func (sc *ScanContext) report(host netip.Addr, openPorts []uint16) error {
	if sc.Reporter == nil || len(openPorts) == 0 {
		return nil
	}
	if sc.OutputLock != nil {
		sc.OutputLock.Lock()
		defer sc.OutputLock.Unlock()
	}
	return sc.Reporter.Report(host, openPorts)
}

func (sc *ScanContext) countProbe(r ProbeResult) {
	if sc.Metrics != nil {
		sc.Metrics.IncrementProbes(r.String())
	}
}

func (sc *ScanContext) countHost(status HostStatus) {
	if sc.Metrics != nil {
		sc.Metrics.IncrementHosts(string(status))
	}
}

func (sc *ScanContext) trackActiveHost(delta int) {
	if sc.Metrics != nil {
		sc.Metrics.AddActiveHosts(delta)
	}
}

// Options configures a scan run beyond what the Request carries.
type Options struct {
	Prober         discovery.Prober
	Reporter       Reporter
	Latch          *discovery.WarningLatch
	Connector      *Connector
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	ScanID         string
	Logger         *logging.Logger
	Metrics        *metrics.PrometheusMetrics
}

func (o Options) scanContext(req Request, pool *workers.Pool) *ScanContext {
	connector := o.Connector
	if connector == nil {
		connector = NewConnector(o.ConnectTimeout)
	}
	latch := o.Latch
	if latch == nil {
		latch = discovery.NewWarningLatch()
	}
	pingTimeout := o.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = discovery.DefaultTimeout
	}
	prober := o.Prober
	if req.PingProhibited {
		prober = nil
	}

	logger := o.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &ScanContext{
		Pool:         pool,
		Latch:        latch,
		Prober:       prober,
		Reporter:     o.Reporter,
		Connector:    connector,
		PingTimeout:  pingTimeout,
		ScanAllPorts: req.ScanAllPorts,
		ScanID:       o.ScanID,
		Logger:       logger.WithComponent("scanner").WithScanID(o.ScanID).WithFields("kind", req.Target.Kind.String()),
		Metrics:      o.Metrics,
	}
}
