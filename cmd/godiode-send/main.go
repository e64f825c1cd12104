// Command godiode-send reads a byte stream from stdin and transmits it
// one-way over UDP using color-tagged chunk redundancy, in the manner of
// the teacher's cmd/get and cmd/exporter_example2 command-line tools:
// logrus for structured logging, an optional Prometheus /metrics endpoint,
// and an optional CSV packet-detail log.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ClarkuCSCI/godiode/chunkbuffer"
	"github.com/ClarkuCSCI/godiode/inputreader"
	"github.com/ClarkuCSCI/godiode/internal/metrics"
	"github.com/ClarkuCSCI/godiode/internal/sockerr"
	"github.com/ClarkuCSCI/godiode/internal/telemetry"
	"github.com/ClarkuCSCI/godiode/internal/transport"
	"github.com/ClarkuCSCI/godiode/sender"
	"github.com/ClarkuCSCI/godiode/wire"
)

const (
	defaultPort       = 1234
	defaultMaxBitrate = 100_000_000
	defaultRedundancy = 2
	defaultMaxPackets = 100
)

func main() {
	os.Exit(run())
}

// run holds every deferred cleanup in one scope so it actually executes;
// main only translates the result to a process exit code.
func run() int {
	logrus.SetOutput(os.Stderr)

	port := flag.Int("port", defaultPort, "UDP port")
	maxBitrate := flag.Int64("max-bitrate", defaultMaxBitrate, "target bitrate in bits/second")
	chunkDuration := flag.Duration("chunk-duration", 0, "duration spanned by each chunk (mutually exclusive with --chunk-max-packets)")
	chunkMaxPackets := flag.Int("chunk-max-packets", 0, "packets per chunk (mutually exclusive with --chunk-duration)")
	redundancy := flag.Int("redundancy", defaultRedundancy, "number of times each chunk is transmitted")
	verbose := flag.Bool("verbose", false, "enable info-level logging")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	packetDetails := flag.String("packet-details", "", "path to write a per-packet CSV log")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else if *verbose {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: godiode-send [flags] <read_ip> <write_ip>")
		return 2
	}
	readIP, writeIP := args[0], args[1]

	if *chunkDuration != 0 && *chunkMaxPackets != 0 {
		fmt.Fprintln(os.Stderr, "usage: --chunk-duration and --chunk-max-packets are mutually exclusive")
		return 2
	}

	nPackets, duration := deriveChunkShape(*chunkDuration, *chunkMaxPackets, *maxBitrate)
	logrus.Infof("chunk shape: %d packets per %s", nPackets, duration)

	collector := metrics.NewPacketCollector("godiode_send", prometheus.Labels{"write_ip": writeIP})
	if *metricsAddr != "" {
		serveMetrics(*metricsAddr, collector)
	}

	var observer sender.PacketObserver = collector
	if *packetDetails != "" {
		f, err := os.Create(*packetDetails)
		if err != nil {
			logrus.Errorf("open packet-details file: %v", err)
			return 1
		}
		defer f.Close()
		rec, err := telemetry.NewRecorder(f)
		if err != nil {
			logrus.Errorf("create packet-details recorder: %v", err)
			return 1
		}
		defer rec.Close()
		observer = multiObserver{collector, rec}
	}

	tr, err := transport.NewSender(transport.Config{
		ReadIP:  readIP,
		WriteIP: writeIP,
		Port:    *port,
		Report:  logStatsOnClose("send"),
	})
	if err != nil {
		if sockerr.IsAddressUnavailable(err) {
			fmt.Fprintln(os.Stderr, sockerr.SenderMessage(readIP, writeIP))
		} else {
			fmt.Fprintf(os.Stderr, "godiode-send: %v\n", err)
		}
		return 1
	}
	defer tr.Close()

	cb := chunkbuffer.New(chunkbuffer.DefaultWatermark)
	chunkMaxDataBytes := nPackets * wire.MaxPayload()

	reader, err := inputreader.New(os.Stdin, cb, chunkMaxDataBytes)
	if err != nil {
		logrus.Errorf("input reader: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trapSignals(cancel)

	readerDone := make(chan error, 1)
	go func() { readerDone <- reader.Run(ctx) }()
	go pollBufferDepth(ctx, cb, collector)

	core := sender.New(tr, cb, sender.Config{
		ChunkMaxPackets: nPackets,
		ChunkDuration:   duration,
		Redundancy:      *redundancy,
	}, observer)

	if err := core.Run(ctx); err != nil {
		logrus.Errorf("sender: %v", err)
		return 1
	}
	if err := <-readerDone; err != nil {
		logrus.Errorf("input reader: %v", err)
		return 1
	}

	logrus.Infof("sent %d bytes, digest=%x", tr.Stats().Bytes, core.Digest())
	return 0
}

// deriveChunkShape computes (n_packets, chunk_duration) from whichever of
// --chunk-duration/--chunk-max-packets was supplied, defaulting to
// defaultMaxPackets when neither is.
func deriveChunkShape(duration time.Duration, nPackets int, maxBitrate int64) (int, time.Duration) {
	udpMaxBytes := wire.UDPMaxBytes
	switch {
	case nPackets != 0:
		t := time.Duration(float64(nPackets) * float64(udpMaxBytes) * 8 / float64(maxBitrate) * float64(time.Second))
		return nPackets, t
	case duration != 0:
		n := int(float64(duration) / float64(time.Second) * float64(maxBitrate) / 8 / float64(udpMaxBytes))
		if n < 1 {
			n = 1
		}
		return n, duration
	default:
		n := defaultMaxPackets
		t := time.Duration(float64(n) * float64(udpMaxBytes) * 8 / float64(maxBitrate) * float64(time.Second))
		return n, t
	}
}

func serveMetrics(addr string, collector prometheus.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logrus.Warnf("metrics server: %v", err)
		}
	}()
}

func logStatsOnClose(role string) transport.ReportFn {
	return func(s *transport.StatsConn, state transport.ConnState) {
		if state == transport.Closed {
			logrus.Infof("%s: packetsSent=%d bytesSent=%d", role, s.PacketsSent(), s.BytesSent())
		}
	}
}

// pollBufferDepth periodically samples cb's queue depth into collector's
// chunk-buffer-depth gauge, since ChunkBuffer itself has no subscriber
// mechanism to push changes as they happen.
func pollBufferDepth(ctx context.Context, cb *chunkbuffer.ChunkBuffer, collector *metrics.PacketCollector) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.SetBufferDepth(int64(cb.Stats().Depth))
		}
	}
}

func trapSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
}

type multiObserver []sender.PacketObserver

func (m multiObserver) ObservePacket(color wire.Color, nPackets, seq uint16, payload []byte) {
	for _, o := range m {
		o.ObservePacket(color, nPackets, seq, payload)
	}
}
