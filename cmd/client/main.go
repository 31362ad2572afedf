// Command client runs a tanknet game client: it predicts its own player's
// movement locally, reconciles against the server's authoritative state,
// and interpolates every other entity it is told about. Rendering, input
// polling and level loading are out of scope for this core and are left to
// a host front-end implementing internal/host's collaborator interfaces.
package main

import (
	"flag"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jarskih/tanknet/core"
	"github.com/jarskih/tanknet/internal/clientapp"
	"github.com/jarskih/tanknet/internal/netcode"
	"github.com/jarskih/tanknet/internal/wire"
)

func main() {
	if err := run(); err != nil {
		logrus.StandardLogger().WithError(err).Fatal("client exited")
	}
}

func run() error {
	serverAddr := flag.String("server", "127.0.0.1:54345", "server address to connect to")
	sendRate := flag.Duration("send-rate", time.Second/10, "outgoing packet interval")
	timeout := flag.Duration("timeout", 5*(time.Second/10), "server idle timeout")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	addr, err := net.ResolveUDPAddr("udp", *serverAddr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	registry := prometheus.NewRegistry()
	connMetrics := netcode.NewMetrics(registry, "client")

	cfg := clientapp.DefaultConfig()
	cfg.SendInterval = *sendRate
	client := clientapp.NewClient(cfg, log, connMetrics, core.Vector2{})

	session := &clientSession{client: client}
	netConn := netcode.NewConnection(cfg.SendInterval, session, connMetrics)
	session.netConn = netConn

	return runLoop(conn, netConn, client, timeout, log)
}

// clientSession adapts netcode.Listener callbacks onto the Client session.
type clientSession struct {
	client  *clientapp.Client
	netConn *netcode.Connection
}

func (s *clientSession) OnReceive(conn *netcode.Connection, payload []byte) {
	s.client.HandleDatagram(payload, time.Now())
}

func (s *clientSession) OnAcknowledge(conn *netcode.Connection, sequence uint16) {
	// The client keeps no reliable events of its own, so the server
	// acknowledging one of its packets leaves nothing to retire here.
}

func (s *clientSession) OnTimeout(conn *netcode.Connection) {}

func runLoop(conn *net.UDPConn, netConn *netcode.Connection, client *clientapp.Client, timeout *time.Duration, log *logrus.Logger) error {
	const tickRate = time.Second / 60
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	buf := make([]byte, 65535)
	for range ticker.C {
		now := time.Now()

		_ = conn.SetReadDeadline(now.Add(time.Millisecond))
		for {
			n, err := conn.Read(buf)
			if err != nil {
				break
			}
			if err := netConn.Ingest(buf[:n], now); err != nil {
				log.WithError(err).Warn("ingest failed")
			}
		}

		if netConn.IsTimedOut(now, *timeout) {
			log.Warn("server connection timed out")
			return nil
		}

		bits, turretRotation, fireRequested := pollInput()
		client.Tick(bits, turretRotation, tickRate)

		if netConn.ShouldSend(now) {
			payload := buildOutgoingPayload(client, bits, turretRotation, fireRequested)
			packet := netConn.Send(now, payload)
			client.RecordSend(now)
			if _, err := conn.Write(packet); err != nil {
				log.WithError(err).Warn("write failed")
			}
		}
	}
	return nil
}

func buildOutgoingPayload(client *clientapp.Client, bits uint8, turretRotation float32, fireRequested bool) []byte {
	messages := []wire.Message{
		&wire.InputCommand{Bits: bits, TurretRot: turretRotation, FireHeld: fireRequested},
	}
	for _, id := range client.PendingAcks() {
		messages = append(messages, &wire.Ack{MessageID: id})
	}
	return wire.EncodeDatagram(messages)
}

// pollInput is a stand-in for the host's input collaborator, which is
// explicitly out of scope for this core; a real front-end supplies these
// from keyboard/controller state each tick.
func pollInput() (bits uint8, turretRotation float32, fireRequested bool) {
	return 0, 0, false
}
