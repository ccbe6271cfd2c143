package discovery

import (
	"context"
	stderrors "errors"
	"net"
	"net/netip"
	"os"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/anstrom/netscanner/internal/logging"
	"github.com/anstrom/netscanner/internal/metrics"
)

const (
	icmpNetwork      = "ip4:icmp"
	icmpListenAddr   = "0.0.0.0"
	icmpProtocolIPv4 = 1
	maxPacketSize    = 1500
)

var echoPayload = []byte("netscanner")

// packetConn is the subset of *icmp.PacketConn used by the prober.
type packetConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, dst net.Addr) (int, error)
	SetDeadline(t time.Time) error
	Close() error
}

type listenFunc func(network, address string) (packetConn, error)

func listenICMP(network, address string) (packetConn, error) {
	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ICMPProber sends one ICMP echo request per check over a raw socket.
type ICMPProber struct {
	listen  listenFunc
	id      int
	seq     *atomic.Uint32
	metrics *metrics.PrometheusMetrics
}

// NewICMPProber creates an ICMP echo prober.
func NewICMPProber(m *metrics.PrometheusMetrics) *ICMPProber {
	return &ICMPProber{
		listen:  listenICMP,
		id:      os.Getpid() & 0xffff,
		seq:     atomic.NewUint32(0),
		metrics: m,
	}
}

// Method implements Prober.
func (p *ICMPProber) Method() string {
	return MethodICMP
}

// Check implements Prober.
func (p *ICMPProber) Check(ctx context.Context, host netip.Addr, timeout time.Duration) Reachability {
	r := p.check(ctx, host, timeout)
	record(p.metrics, MethodICMP, r)
	return r
}

func (p *ICMPProber) check(ctx context.Context, host netip.Addr, timeout time.Duration) Reachability {
	host = host.Unmap()
	if !host.Is4() {
		return Inconclusive
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := p.listen(icmpNetwork, icmpListenAddr)
	if err != nil {
		if isPermissionError(err) {
			logging.Debug("ICMP socket not permitted", "host", host.String(), "error", err)
			return PermissionDenied
		}
		logging.ErrorDiscovery("Failed to open ICMP socket", host.String(), err)
		return Inconclusive
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Inconclusive
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	seq := int(p.seq.Inc() & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: echoPayload},
	}
	packet, err := msg.Marshal(nil)
	if err != nil {
		return Inconclusive
	}

	if _, err := conn.WriteTo(packet, &net.IPAddr{IP: host.AsSlice()}); err != nil {
		if isPermissionError(err) {
			return PermissionDenied
		}
		logging.ErrorDiscovery("Failed to send ICMP echo", host.String(), err)
		return Inconclusive
	}

	buf := make([]byte, maxPacketSize)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return Inconclusive
			}
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				return Unreachable
			}
			return Inconclusive
		}
		if !fromHost(peer, host) {
			continue
		}
		if p.isOurReply(buf[:n], seq) {
			logging.Debug("ICMP echo reply received", "host", host.String(), "seq", seq)
			return Reachable
		}
	}
}

func (p *ICMPProber) isOurReply(b []byte, seq int) bool {
	reply, err := icmp.ParseMessage(icmpProtocolIPv4, b)
	if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
		return false
	}
	echo, ok := reply.Body.(*icmp.Echo)
	return ok && echo.ID == p.id && echo.Seq == seq
}

func fromHost(peer net.Addr, host netip.Addr) bool {
	ipAddr, ok := peer.(*net.IPAddr)
	if !ok {
		return false
	}
	addr, ok := netip.AddrFromSlice(ipAddr.IP)
	return ok && addr.Unmap() == host
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission)
}
