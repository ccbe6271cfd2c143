package scanning

import (
	"fmt"
	"iter"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/anstrom/netscanner/internal/discovery"
	"github.com/anstrom/netscanner/internal/errors"
)

const (
	ipv4Bits = 32
)

// TargetKind identifies how a Target selects addresses.
type TargetKind int

const (
	// TargetSingle is one host.
	TargetSingle TargetKind = iota
	// TargetRange is an inclusive start/end address pair.
	TargetRange
	// TargetSubnet is a CIDR block, network and broadcast addresses included.
	TargetSubnet
)

// String returns the metrics label for k.
func (k TargetKind) String() string {
	switch k {
	case TargetSingle:
		return "single"
	case TargetRange:
		return "range"
	case TargetSubnet:
		return "subnet"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Target is a validated IPv4 address selection.
type Target struct {
	Kind   TargetKind
	Start  netip.Addr
	End    netip.Addr
	Prefix netip.Prefix
}

// SingleTarget selects one IPv4 host.
func SingleTarget(addr string) (Target, error) {
	ip, err := parseIPv4(addr)
	if err != nil {
		return Target{}, err
	}
	return Target{Kind: TargetSingle, Start: ip, End: ip}, nil
}

// RangeTarget selects every address from start to end inclusive.
func RangeTarget(start, end string) (Target, error) {
	first, err := parseIPv4(start)
	if err != nil {
		return Target{}, err
	}
	last, err := parseIPv4(end)
	if err != nil {
		return Target{}, err
	}
	if last.Less(first) {
		return Target{}, errors.ErrInvalidRange(start, end)
	}
	return Target{Kind: TargetRange, Start: first, End: last}, nil
}

// SubnetTarget selects the CIDR block addr/bits. Host bits set in addr are
// cleared, so 10.0.0.7/30 covers 10.0.0.4 through 10.0.0.7.
func SubnetTarget(addr string, bits int) (Target, error) {
	ip, err := parseIPv4(addr)
	if err != nil {
		return Target{}, err
	}
	if bits < 0 || bits > ipv4Bits {
		return Target{}, errors.ErrInvalidCIDR(fmt.Sprintf("%s/%d", addr, bits))
	}

	prefix := netip.PrefixFrom(ip, bits).Masked()
	base := toUint32(prefix.Addr())
	last := uint64(base) + (uint64(1) << (ipv4Bits - bits)) - 1

	return Target{
		Kind:   TargetSubnet,
		Start:  prefix.Addr(),
		End:    fromUint32(uint32(last)),
		Prefix: prefix,
	}, nil
}

// ParseSubnetTarget is SubnetTarget with the prefix length given as text.
func ParseSubnetTarget(addr, bits string) (Target, error) {
	n, err := strconv.Atoi(strings.TrimSpace(bits))
	if err != nil {
		return Target{}, errors.WrapTargetError(errors.CodeInvalidCIDR,
			"invalid CIDR prefix length", addr+"/"+bits, err)
	}
	return SubnetTarget(addr, n)
}

// Count returns the number of addresses in t.
func (t Target) Count() uint64 {
	if !t.Start.IsValid() {
		return 0
	}
	return uint64(toUint32(t.End)) - uint64(toUint32(t.Start)) + 1
}

// Addrs yields every address of t in ascending order.
func (t Target) Addrs() iter.Seq[netip.Addr] {
	return ExpandTarget(t)
}

// String implements fmt.Stringer.
func (t Target) String() string {
	switch t.Kind {
	case TargetSubnet:
		return t.Prefix.String()
	case TargetRange:
		return t.Start.String() + "-" + t.End.String()
	default:
		return t.Start.String()
	}
}

// ExpandTarget yields the inclusive address sequence of t.
func ExpandTarget(t Target) iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		if !t.Start.IsValid() {
			return
		}
		first, last := uint64(toUint32(t.Start)), uint64(toUint32(t.End))
		for n := first; n <= last; n++ {
			if !yield(fromUint32(uint32(n))) {
				return
			}
		}
	}
}

func parseIPv4(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !ip.Is4() {
		return netip.Addr{}, errors.ErrInvalidAddress(s)
	}
	return ip, nil
}

func toUint32(ip netip.Addr) uint32 {
	b := ip.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func fromUint32(n uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
}

// Request is an immutable scan request built once by the command line.
type Request struct {
	Target         Target
	ScanAllPorts   bool
	PingProhibited bool
	MaxThreads     int
}

// Validate checks the request before any network activity.
func (r Request) Validate() error {
	if !r.Target.Start.IsValid() || !r.Target.End.IsValid() {
		return errors.NewTargetError(errors.CodeMissingArgument, "no target specified", "")
	}
	if r.Target.End.Less(r.Target.Start) {
		return errors.ErrInvalidRange(r.Target.Start.String(), r.Target.End.String())
	}
	if r.MaxThreads < 1 {
		return errors.ErrConfigInvalid("scanning.max_threads", r.MaxThreads)
	}
	return nil
}

// HostStatus is the final state of one host scan.
type HostStatus string

const (
	// StatusUp means the host was port scanned.
	StatusUp HostStatus = "up"
	// StatusDown means the reachability check said the host is gone; no ports were probed.
	StatusDown HostStatus = "down"
	// StatusCanceled means the scan was interrupted before the host finished.
	StatusCanceled HostStatus = "canceled"
)

// HostResult is the outcome of scanning one host. OpenPorts is ascending and
// duplicate-free.
type HostResult struct {
	Host         netip.Addr
	OpenPorts    []uint16
	Status       HostStatus
	Reachability *discovery.Reachability
	Probed       int
}

// Summary aggregates a whole scan run.
type Summary struct {
	ScanID    string
	Target    Target
	Hosts     []HostResult
	StartTime time.Time
	Duration  time.Duration
	// PeakQueued is the most jobs the pool ever had waiting for a slot.
	PeakQueued int64
}

// Stats counts hosts by status and open ports overall.
func (s *Summary) Stats() (up, down, canceled, open int) {
	for _, h := range s.Hosts {
		switch h.Status {
		case StatusUp:
			up++
		case StatusDown:
			down++
		case StatusCanceled:
			canceled++
		}
		open += len(h.OpenPorts)
	}
	return up, down, canceled, open
}
