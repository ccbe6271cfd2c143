package cli

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/netscanner/internal/discovery"
	"github.com/anstrom/netscanner/internal/errors"
	"github.com/anstrom/netscanner/internal/logging"
	"github.com/anstrom/netscanner/internal/metrics"
	"github.com/anstrom/netscanner/internal/reporting"
	"github.com/anstrom/netscanner/internal/scanning"
)

// routeProbeAddr is only used to pick the outgoing interface; no packet is sent.
const routeProbeAddr = "192.0.2.1:9"

var dialUDP = net.Dial

func newThisCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "this",
		Short: "Scans important ports of the current device",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ip := localIPv4(a.logger)
			target, err := scanning.SingleTarget(ip.String())
			if err != nil {
				return err
			}
			return a.scan(cmd, target)
		},
	}
}

func newDeviceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "device <IPv4>",
		Short:   "Scans important ports of the given IP",
		Example: "  netscanner device 192.168.1.10 -a -p",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scanning.SingleTarget(args[0])
			if err != nil {
				return err
			}
			return a.scan(cmd, target)
		},
	}
}

func newRangeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "range <IPv4start> <IPv4end>",
		Short:   "Scans important ports of all IPs in the range [start; end]",
		Example: "  netscanner range 192.168.1.1 192.168.1.50 -t 256",
		Args:    exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scanning.RangeTarget(args[0], args[1])
			if err != nil {
				return err
			}
			return a.scan(cmd, target)
		},
	}
}

func newSubnetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subnet <IPv4> <CIDRprefix>",
		Short: "Scans important ports of all IPs in the subnet",
		Long: `Scans every address of the CIDR block, network and broadcast addresses
included. Host bits set in the given address are ignored.`,
		Example: "  netscanner subnet 192.168.1.0 24",
		Args:    exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scanning.ParseSubnetTarget(args[0], args[1])
			if err != nil {
				return err
			}
			return a.scan(cmd, target)
		},
	}
}

// exactArgs reports missing positional arguments with the MISSING_ARGUMENT code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return errors.ErrMissingArgument(cmd.Name(), n-len(args))
		}
		if len(args) > n {
			return errors.NewTargetError(errors.CodeValidation,
				fmt.Sprintf("The argument '%s' accepts %d argument(s), received %d", cmd.Name(), n, len(args)),
				cmd.Name())
		}
		return nil
	}
}

// scan runs one request built from the layered configuration and prints the
// completion footer.
func (a *app) scan(cmd *cobra.Command, target scanning.Target) error {
	cfg := a.cfg
	req := scanning.Request{
		Target:         target,
		ScanAllPorts:   cfg.Scanning.ScanAllPorts,
		PingProhibited: cfg.Scanning.PingProhibited,
		MaxThreads:     cfg.Scanning.MaxThreads,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	reporter, err := reporting.New(cfg.Output.Format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	m := metrics.GetGlobalMetrics()

	var prober discovery.Prober
	if !req.PingProhibited {
		prober, err = discovery.New(cfg.Discovery.Method, m)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.ListenAddr != "" {
		addr, err := m.Serve(ctx, cfg.Metrics.ListenAddr)
		if err != nil {
			return err
		}
		a.logger.Info("Serving metrics", "addr", addr.String())
	}

	start := time.Now()
	_, err = scanning.Run(ctx, req, scanning.Options{
		Prober:         prober,
		Reporter:       reporter,
		Latch:          discovery.NewWarningLatchTo(cmd.ErrOrStderr()),
		ConnectTimeout: cfg.Scanning.ConnectTimeout,
		PingTimeout:    cfg.Discovery.Timeout,
		Logger:         a.logger,
		Metrics:        m,
	})
	if err != nil {
		logging.ErrorScan("Scan failed", target.String(), err)
		return err
	}

	return reporting.Footer(footerWriter(cmd, cfg.Output.Format), time.Since(start))
}

// footerWriter keeps JSON output on stdout machine readable.
func footerWriter(cmd *cobra.Command, format string) io.Writer {
	if format == reporting.FormatJSON {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

// localIPv4 returns the address of the interface holding the default route,
// or the loopback address when there is none.
func localIPv4(logger *logging.Logger) netip.Addr {
	loopback := netip.AddrFrom4([4]byte{127, 0, 0, 1})
	if logger == nil {
		logger = logging.Default()
	}

	conn, err := dialUDP("udp4", routeProbeAddr)
	if err != nil {
		logger.WithError(err).Warn("No default route, scanning loopback instead")
		return loopback
	}
	defer conn.Close()

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return loopback
	}
	ip, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return loopback
	}
	ip = ip.Unmap()
	if !ip.Is4() || ip.IsUnspecified() {
		return loopback
	}
	return ip
}
