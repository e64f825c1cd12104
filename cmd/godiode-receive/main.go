// Command godiode-receive listens for datagrams from godiode-send and
// writes the verified byte stream to stdout, exiting 0 on a digest match
// and 1 otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ClarkuCSCI/godiode/internal/metrics"
	"github.com/ClarkuCSCI/godiode/internal/sockerr"
	"github.com/ClarkuCSCI/godiode/internal/telemetry"
	"github.com/ClarkuCSCI/godiode/internal/transport"
	"github.com/ClarkuCSCI/godiode/receiver"
	"github.com/ClarkuCSCI/godiode/wire"
)

const defaultPort = 1234

func main() {
	os.Exit(run())
}

// run holds every deferred cleanup in one scope so it actually executes;
// main only translates the result to a process exit code.
func run() int {
	logrus.SetOutput(os.Stderr)

	port := flag.Int("port", defaultPort, "UDP port")
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
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: godiode-receive [flags] <read_ip>")
		return 2
	}
	readIP := args[0]

	collector := metrics.NewPacketCollector("godiode_receive", prometheus.Labels{"read_ip": readIP})
	if *metricsAddr != "" {
		serveMetrics(*metricsAddr, collector)
	}

	var observer receiver.PacketObserver = collector
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

	tr, err := transport.NewReceiver(readIP, *port, logStatsOnClose("receive"))
	if err != nil {
		if sockerr.IsAddressInUse(err) {
			fmt.Fprintln(os.Stderr, sockerr.ReceiverInUseMessage(readIP))
		} else {
			fmt.Fprintln(os.Stderr, sockerr.ReceiverUnavailableMessage(readIP))
		}
		return 1
	}
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trapSignals(cancel, tr)

	core := receiver.New(tr, observer)
	writer := receiver.NewOutputWriter(core, os.Stdout)

	loopDone := make(chan error, 1)
	go func() { loopDone <- core.ReceiveLoop(ctx) }()

	writeErr := writer.Run()
	<-loopDone

	switch writeErr {
	case nil:
		collector.ObserveDigestResult(true)
		logrus.Infof("received %d bytes, digest verified", tr.Stats().Bytes)
		return 0
	case receiver.ErrDigestMismatch:
		collector.ObserveDigestResult(false)
		logrus.Errorf("digest mismatch")
		return 1
	case receiver.ErrMissingEOF:
		logrus.Errorf("transfer ended without an EOF packet")
		return 1
	default:
		logrus.Errorf("receiver: %v", writeErr)
		return 1
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
			logrus.Infof("%s: packetsRecv=%d bytesRecv=%d", role, s.PacketsRecv(), s.BytesRecv())
		}
	}
}

// trapSignals cancels ctx and closes tr on SIGINT/SIGTERM, unblocking any
// in-flight ReadDatagram call so ReceiveLoop can observe the cancellation.
func trapSignals(cancel context.CancelFunc, tr *transport.Receiver) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		tr.Close()
	}()
}

type multiObserver []receiver.PacketObserver

func (m multiObserver) ObservePacket(color wire.Color, nPackets, seq uint16, payload []byte) {
	for _, o := range m {
		o.ObservePacket(color, nPackets, seq, payload)
	}
}
