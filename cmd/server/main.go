// Command server runs the authoritative tanknet game server: a UDP game
// socket on -listen, and a Prometheus /metrics endpoint on -metrics-addr.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/jarskih/tanknet/internal/serverapp"
)

func main() {
	if err := run(); err != nil {
		logrus.StandardLogger().WithError(err).Fatal("server exited")
	}
}

func run() error {
	listen := flag.String("listen", ":54345", "UDP address to bind the game socket on")
	metricsAddr := flag.String("metrics-addr", ":9100", "address to serve /metrics on")
	sendRate := flag.Duration("send-rate", time.Second/20, "outgoing packet interval per client")
	timeout := flag.Duration("timeout", 5*(time.Second/20), "client idle timeout")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	addr, err := net.ResolveUDPAddr("udp", *listen)
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("binding game socket: %w", err)
	}
	defer conn.Close()

	registry := prometheus.NewRegistry()
	cfg := serverapp.DefaultConfig()
	cfg.SendInterval = *sendRate
	cfg.TimeoutThreshold = *timeout
	server := serverapp.NewServer(cfg, registry, log)

	go serveMetrics(*metricsAddr, registry, log)

	log.WithField("addr", conn.LocalAddr()).Info("tanknet server listening")
	return runLoop(conn, server, log)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server stopped")
	}
}

// runLoop is the single-threaded cooperative loop: a fixed 60Hz simulation
// tick, UDP reads gated by a short deadline so the loop never blocks
// indefinitely, and per-client sends paced by each connection's own send
// interval.
func runLoop(conn *net.UDPConn, server *serverapp.Server, log *logrus.Logger) error {
	const tickRate = time.Second / 60
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	handles := newHandleRegistry(server)
	buf := make([]byte, 65535)

	for range ticker.C {
		now := time.Now()

		_ = conn.SetReadDeadline(now.Add(time.Millisecond))
		for {
			n, remote, err := conn.ReadFromUDP(buf)
			if err != nil {
				break
			}
			handles.handlePacket(remote, buf[:n], now, log)
		}

		server.Step(tickRate)

		for _, clientID := range server.Clients() {
			netConn, ok := server.ConnectionFor(clientID)
			if !ok || !netConn.ShouldSend(now) {
				continue
			}
			packet, ok := server.BuildOutgoingPacket(clientID, now)
			if !ok {
				continue
			}
			remote, ok := handles.remoteOf(clientID)
			if !ok {
				continue
			}
			if _, err := conn.WriteToUDP(packet, remote); err != nil {
				log.WithError(err).Warn("write failed")
			}
		}

		for _, clientID := range server.Clients() {
			netConn, ok := server.ConnectionFor(clientID)
			if ok && netConn.IsTimedOut(now, server.TimeoutThreshold()) {
				handles.forget(clientID)
			}
		}
	}
	return os.ErrClosed
}

// handleRegistry maps UDP remote addresses to the client ids the server
// session assigns on first contact. The on-the-wire discovery protocol
// (broadcast + response) is out of scope for this core; any packet from an
// address not seen before is treated as a new connection attempt.
type handleRegistry struct {
	server *serverapp.Server
	byAddr map[string]int32
	addrOf map[int32]*net.UDPAddr
}

func newHandleRegistry(server *serverapp.Server) *handleRegistry {
	return &handleRegistry{
		server: server,
		byAddr: make(map[string]int32),
		addrOf: make(map[int32]*net.UDPAddr),
	}
}

func (h *handleRegistry) handlePacket(remote *net.UDPAddr, data []byte, now time.Time, log *logrus.Logger) {
	key := remote.String()
	clientID, known := h.byAddr[key]
	if !known {
		record := h.server.Connect(xid.New())
		clientID = record.ID
		h.byAddr[key] = clientID
		h.addrOf[clientID] = remote
		log.WithFields(logrus.Fields{"client_id": clientID, "addr": key}).Info("new connection")
	}

	netConn, ok := h.server.ConnectionFor(clientID)
	if !ok {
		return
	}
	if err := netConn.Ingest(data, now); err != nil {
		log.WithError(err).Warn("ingest failed")
	}
}

func (h *handleRegistry) remoteOf(clientID int32) (*net.UDPAddr, bool) {
	addr, ok := h.addrOf[clientID]
	return addr, ok
}

func (h *handleRegistry) forget(clientID int32) {
	addr, ok := h.addrOf[clientID]
	if !ok {
		return
	}
	delete(h.byAddr, addr.String())
	delete(h.addrOf, clientID)
}
