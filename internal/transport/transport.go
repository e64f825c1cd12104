// Package transport implements the diode's UDP datagram endpoint: a sender
// socket bound to a chosen source interface with broadcast enabled, and a
// receiver socket bound to the interface data arrives on. Both sides read
// and write whole, fixed-size datagrams — there is no wire feedback.
package transport

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"github.com/sirupsen/logrus"
)

// socketBufferBytes sizes the OS send/receive buffers generously for
// sustained high-throughput transfer, following the pattern of sizing UDP
// socket buffers up front rather than relying on small OS defaults.
const socketBufferBytes = 8 * 1024 * 1024

// Config configures a Sender endpoint.
type Config struct {
	ReadIP  string // interface the far end reads from (the send target)
	WriteIP string // local interface to send from
	Port    int

	Report ReportFn // optional open/close stats callback
}

// Sender is the sending half of UdpTransport: a UDP socket bound to
// (WriteIP, ephemeral port), broadcast-enabled, targeting (ReadIP, Port) on
// every SendTo call.
type Sender struct {
	conn    *net.UDPConn
	dstAddr *net.UDPAddr
	stats   *StatsConn
}

// NewSender opens a UDP socket bound to cfg.WriteIP with SO_BROADCAST set,
// ready to send datagrams toward (cfg.ReadIP, cfg.Port).
func NewSender(cfg Config) (*Sender, error) {
	localAddr := &net.UDPAddr{IP: net.ParseIP(cfg.WriteIP)}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind sender to %s: %w", cfg.WriteIP, err)
	}

	if err := setBroadcast(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: enable broadcast: %w", err)
	}
	_ = conn.SetWriteBuffer(socketBufferBytes)

	dstIP := net.ParseIP(cfg.ReadIP)
	if dstIP == nil {
		resolved, err := net.ResolveIPAddr("ip", cfg.ReadIP)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: resolve destination %s: %w", cfg.ReadIP, err)
		}
		dstIP = resolved.IP
	}

	logrus.Debugf("transport: sender socket fd=%d bound to %s", Fd(conn), cfg.WriteIP)

	return &Sender{
		conn:    conn,
		dstAddr: &net.UDPAddr{IP: dstIP, Port: cfg.Port},
		stats:   NewStatsConn(cfg.Report),
	}, nil
}

// SendTo transmits one fixed-size datagram toward the configured
// destination, tracking cumulative packets/bytes sent.
func (s *Sender) SendTo(datagram []byte) error {
	n, err := s.conn.WriteToUDP(datagram, s.dstAddr)
	if err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	s.stats.TrackSent(n)
	return nil
}

// Stats is a snapshot of cumulative send or receive activity on a socket.
type Stats struct {
	Packets int64
	Bytes   int64
}

// Stats returns the sender's cumulative packet/byte counts.
func (s *Sender) Stats() Stats {
	return Stats{Packets: s.stats.PacketsSent(), Bytes: s.stats.BytesSent()}
}

// Close releases the underlying socket and reports final stats.
func (s *Sender) Close() error {
	s.stats.Close()
	return s.conn.Close()
}

// Receiver is the receiving half of UdpTransport: a UDP socket bound to
// (ReadIP, Port), reading fixed-size datagrams.
type Receiver struct {
	conn  *net.UDPConn
	stats *StatsConn
}

// NewReceiver binds a UDP socket to (readIP, port) to receive datagrams.
func NewReceiver(readIP string, port int, report ReportFn) (*Receiver, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(readIP), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind receiver to %s:%d: %w", readIP, port, err)
	}
	_ = conn.SetReadBuffer(socketBufferBytes)

	logrus.Debugf("transport: receiver socket fd=%d bound to %s:%d", Fd(conn), readIP, port)

	return &Receiver{conn: conn, stats: NewStatsConn(report)}, nil
}

// ReadDatagram blocks until a fixed-size datagram is available and returns
// its length. The buf slice is reused across calls by the caller.
func (r *Receiver) ReadDatagram(buf []byte) (int, error) {
	n, err := r.conn.Read(buf)
	if err != nil {
		return 0, err
	}
	r.stats.TrackRecv(n)
	return n, nil
}

// Stats returns the receiver's cumulative packet/byte counts.
func (r *Receiver) Stats() Stats {
	return Stats{Packets: r.stats.PacketsRecv(), Bytes: r.stats.BytesRecv()}
}

// Close releases the underlying socket, unblocking any in-flight
// ReadDatagram call with an error, and reports final stats.
func (r *Receiver) Close() error {
	r.stats.Close()
	return r.conn.Close()
}

// Fd returns the raw file descriptor backing conn, for diagnostics or
// additional socket tuning beyond what net.UDPConn exposes directly.
func Fd(conn net.Conn) int {
	return netfd.GetFdFromConn(conn)
}
