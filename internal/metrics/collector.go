// Package metrics exposes a Prometheus collector over the counters the
// sender and receiver accumulate, adapted from the teacher's
// TCPInfoCollector (pkg/exporter/exporter.go): that collector polled
// TCP_INFO from a registered set of live sockets on every scrape, which has
// no analogue for a connectionless, unidirectional UDP stream. PacketCollector
// instead accumulates counters as packets are observed and serves whatever
// values are current at scrape time.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ClarkuCSCI/godiode/wire"
)

// PacketCollector implements prometheus.Collector over cumulative counters
// for packets transmitted or received, broken down by color, plus
// digest-verification outcome counters and a chunk-buffer depth gauge.
type PacketCollector struct {
	mu sync.Mutex

	packetsByColor map[wire.Color]int64
	bytesByColor   map[wire.Color]int64
	chunksComplete int64
	digestMismatch int64
	digestMatch    int64
	bufferDepth    int64

	packetsDesc     *prometheus.Desc
	bytesDesc       *prometheus.Desc
	chunksDesc      *prometheus.Desc
	digestDesc      *prometheus.Desc
	bufferDepthDesc *prometheus.Desc
}

// NewPacketCollector creates a PacketCollector. prefix namespaces every
// metric name, mirroring the teacher's NewTCPInfoCollector(prefix, ...).
func NewPacketCollector(prefix string, constLabels prometheus.Labels) *PacketCollector {
	return &PacketCollector{
		packetsByColor: make(map[wire.Color]int64),
		bytesByColor:   make(map[wire.Color]int64),
		packetsDesc: prometheus.NewDesc(
			prefix+"_packets_total",
			"Cumulative packets observed, labeled by color.",
			[]string{"color"}, constLabels,
		),
		bytesDesc: prometheus.NewDesc(
			prefix+"_bytes_total",
			"Cumulative payload bytes observed, labeled by color.",
			[]string{"color"}, constLabels,
		),
		chunksDesc: prometheus.NewDesc(
			prefix+"_chunks_completed_total",
			"Chunks fully reassembled or fully sent.",
			nil, constLabels,
		),
		digestDesc: prometheus.NewDesc(
			prefix+"_digest_verifications_total",
			"Digest verification outcomes, labeled by result.",
			[]string{"result"}, constLabels,
		),
		bufferDepthDesc: prometheus.NewDesc(
			prefix+"_chunk_buffer_depth",
			"Current number of chunks queued in the ChunkBuffer.",
			nil, constLabels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PacketCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.packetsDesc
	descs <- c.bytesDesc
	descs <- c.chunksDesc
	descs <- c.digestDesc
	descs <- c.bufferDepthDesc
}

// Collect implements prometheus.Collector.
func (c *PacketCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for color, n := range c.packetsByColor {
		metrics <- prometheus.MustNewConstMetric(c.packetsDesc, prometheus.CounterValue, float64(n), colorLabel(color))
	}
	for color, n := range c.bytesByColor {
		metrics <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.CounterValue, float64(n), colorLabel(color))
	}
	metrics <- prometheus.MustNewConstMetric(c.chunksDesc, prometheus.CounterValue, float64(c.chunksComplete))
	metrics <- prometheus.MustNewConstMetric(c.digestDesc, prometheus.CounterValue, float64(c.digestMatch), "match")
	metrics <- prometheus.MustNewConstMetric(c.digestDesc, prometheus.CounterValue, float64(c.digestMismatch), "mismatch")
	metrics <- prometheus.MustNewConstMetric(c.bufferDepthDesc, prometheus.GaugeValue, float64(c.bufferDepth))
}

// ObservePacket implements sender.PacketObserver and receiver.PacketObserver,
// letting a single collector instance hook either side of the link.
func (c *PacketCollector) ObservePacket(color wire.Color, nPackets, seq uint16, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packetsByColor[color]++
	c.bytesByColor[color] += int64(len(payload))
	if color == wire.ColorRed || color == wire.ColorBlue {
		if seq == nPackets-1 {
			c.chunksComplete++
		}
	}
}

// ObserveDigestResult records the final digest comparison outcome.
func (c *PacketCollector) ObserveDigestResult(match bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if match {
		c.digestMatch++
	} else {
		c.digestMismatch++
	}
}

// SetBufferDepth publishes the current ChunkBuffer depth, typically fed from
// chunkbuffer.Stats on a polling interval.
func (c *PacketCollector) SetBufferDepth(depth int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bufferDepth = depth
}

func colorLabel(c wire.Color) string {
	switch c {
	case wire.ColorRed:
		return "red"
	case wire.ColorBlue:
		return "blue"
	case wire.ColorBlack:
		return "black"
	case wire.ColorWhite:
		return "white"
	default:
		return "unknown"
	}
}
