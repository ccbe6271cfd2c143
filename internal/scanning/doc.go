// Package scanning provides the TCP connect scanning engine of netscanner.
//
// This package turns a validated Request into per-host open port lists. It
// expands targets into addresses, probes ports through a bounded worker pool,
// and hands finished hosts to a Reporter.
//
// # Overview
//
// A scan starts from a Request, built once by the command line and never
// modified afterwards. The main entry point is Run, which dispatches to
// ScanDevice, ScanRange or ScanSubnet depending on the target kind.
//
// # Main Components
//
// ## Targets
//
// Targets are validated eagerly, before any network activity:
//   - SingleTarget: one IPv4 host
//   - RangeTarget: an inclusive start/end pair
//   - SubnetTarget: a CIDR block including network and broadcast addresses
//   - ExpandTarget: the ascending address sequence of a target
//
// ## Probing
//
// Port probing is handled by:
//   - ConnectProbe and Connector: one TCP connect attempt with a timeout
//   - ScanHost: the per-host state machine (reachability check, dispatch,
//     collection, reporting)
//
// ## Orchestration
//
// Multi-host scans share a single ScanContext:
//   - one workers.Pool capping concurrent jobs across all hosts
//   - one output lock so host reports never interleave
//   - one discovery.WarningLatch so the sudo advisory prints once
//
// # Usage Examples
//
//	target, err := scanning.SubnetTarget("192.168.1.0", 24)
//	if err != nil {
//		return err
//	}
//
//	req := scanning.Request{Target: target, MaxThreads: 512}
//	summary, err := scanning.Run(ctx, req, scanning.Options{
//		Prober:   discovery.NewICMPProber(nil),
//		Reporter: reporting.NewText(os.Stdout),
//	})
//
// # Ordering
//
// Within one host the reported ports are ascending and unique regardless of
// the order probes complete in. Across hosts there is no ordering guarantee
// for reports; Summary.Hosts is sorted by address.
//
// # Error Handling
//
// Malformed targets yield errors.TargetError values with the INVALID_ADDRESS,
// INVALID_RANGE or INVALID_CIDR codes. Per-port resolution and connection
// failures are never surfaced: they count as closed, are logged at debug
// level and show up in the probe metrics. An interrupted scan returns the
// partial Summary together with a CANCELED error.
package scanning
