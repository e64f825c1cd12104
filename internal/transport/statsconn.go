package transport

import (
	"sync/atomic"
	"time"
)

// ReportFn is invoked whenever a StatsConn transitions between open and
// closed, mirroring the teacher's ReportStatsFn/gatherAndReport shape from
// wrap.go — adapted here from per-byte TCP_INFO reporting to per-datagram
// packet/byte counters, since a connectionless UDP socket has no TCP_INFO
// to gather.
type ReportFn func(s *StatsConn, state ConnState)

// ConnState mirrors the teacher's Opened/Closed state pair.
type ConnState int

const (
	// Opened reports state right after the socket is created.
	Opened ConnState = iota
	// Closed reports final cumulative stats when the socket is closed.
	Closed
)

// StatsConn tracks cumulative packet/byte counters and first/last activity
// timestamps for one UDP socket, and invokes report on open/close exactly as
// the teacher's Conn invokes reportStats on open/close of a TCP connection.
type StatsConn struct {
	report ReportFn

	OpenedAt   int64
	ClosedAt   int64
	FirstSentAt int64
	LastSentAt  int64
	FirstRecvAt int64
	LastRecvAt  int64

	packetsSent atomic.Int64
	bytesSent   atomic.Int64
	packetsRecv atomic.Int64
	bytesRecv   atomic.Int64
}

// NewStatsConn creates a StatsConn and immediately reports the Opened
// state, as WrapConn does in the teacher.
func NewStatsConn(report ReportFn) *StatsConn {
	s := &StatsConn{report: report, OpenedAt: time.Now().UnixNano()}
	if s.report != nil {
		s.report(s, Opened)
	}
	return s
}

// TrackSent records one transmitted datagram of n bytes.
func (s *StatsConn) TrackSent(n int) {
	ts := time.Now().UnixNano()
	if s.packetsSent.Load() == 0 {
		s.FirstSentAt = ts
	}
	s.LastSentAt = ts
	s.packetsSent.Add(1)
	s.bytesSent.Add(int64(n))
}

// TrackRecv records one received datagram of n bytes.
func (s *StatsConn) TrackRecv(n int) {
	ts := time.Now().UnixNano()
	if s.packetsRecv.Load() == 0 {
		s.FirstRecvAt = ts
	}
	s.LastRecvAt = ts
	s.packetsRecv.Add(1)
	s.bytesRecv.Add(int64(n))
}

// PacketsSent, BytesSent, PacketsRecv, and BytesRecv return cumulative
// counters.
func (s *StatsConn) PacketsSent() int64 { return s.packetsSent.Load() }
func (s *StatsConn) BytesSent() int64   { return s.bytesSent.Load() }
func (s *StatsConn) PacketsRecv() int64 { return s.packetsRecv.Load() }
func (s *StatsConn) BytesRecv() int64   { return s.bytesRecv.Load() }

// Close marks the socket closed and invokes the final report, as the
// teacher's Conn.Close does before closing the underlying net.Conn.
func (s *StatsConn) Close() {
	s.ClosedAt = time.Now().UnixNano()
	if s.report != nil {
		s.report(s, Closed)
	}
}
