package serverapp

import (
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/jarskih/tanknet/internal/reliable"
	"github.com/jarskih/tanknet/internal/wire"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer() *Server {
	return NewServer(DefaultConfig(), prometheus.NewRegistry(), testLogger())
}

func TestConnectSpawnsPlayerAndFansOutToExistingClients(t *testing.T) {
	s := newTestServer()
	first := s.Connect(xid.New())
	second := s.Connect(xid.New())

	// The new client should have been told to spawn the first player, and
	// the first client should have been told to spawn the new one.
	pendingForSecond := s.reliableQueue.Pending(peerOf(second.ID))
	if !anySpawnFor(pendingForSecond, first.PlayerID) {
		t.Fatalf("expected second client's queue to contain a spawn for the first player: %+v", pendingForSecond)
	}

	pendingForFirst := s.reliableQueue.Pending(peerOf(first.ID))
	if !anySpawnFor(pendingForFirst, second.PlayerID) {
		t.Fatalf("expected first client's queue to contain a spawn for the second player: %+v", pendingForFirst)
	}
}

func TestDisconnectFansOutDestroyToRemainingClients(t *testing.T) {
	s := newTestServer()
	first := s.Connect(xid.New())
	second := s.Connect(xid.New())

	s.Disconnect(first.ID)

	pendingForSecond := s.reliableQueue.Pending(peerOf(second.ID))
	found := false
	for _, evt := range pendingForSecond {
		if evt.Kind == reliable.DestroyPlayer && evt.SubjectID == first.PlayerID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected remaining client to receive a destroy event for the disconnected player")
	}

	if _, ok := s.world.Player(first.PlayerID); ok {
		t.Fatalf("expected disconnected player to be removed from the world")
	}
}

func TestOnAcknowledgeRetiresReliableEvents(t *testing.T) {
	s := newTestServer()
	client := s.Connect(xid.New())
	s.Connect(xid.New()) // second client so the first has a spawn event queued about it

	pending := s.reliableQueue.Pending(peerOf(client.ID))
	if len(pending) == 0 {
		t.Fatal("expected at least one queued event once another client has joined")
	}

	seq := client.Conn.PeekNextSequence()
	packet, ok := s.BuildOutgoingPacket(client.ID, time.Now())
	if !ok {
		t.Fatal("expected BuildOutgoingPacket to succeed")
	}
	if len(packet) == 0 {
		t.Fatal("expected a non-empty packet")
	}

	// Simulate the transport layer observing the client's ack of our
	// sequence: this is the only path that retires reliable events.
	s.OnAcknowledge(client.Conn, seq)

	if len(s.reliableQueue.Pending(peerOf(client.ID))) != 0 {
		t.Fatalf("expected reliable events sent on the acked sequence to be retired")
	}
}

func TestOnReceiveQueuesInputCommand(t *testing.T) {
	s := newTestServer()
	client := s.Connect(xid.New())

	cmd := &wire.InputCommand{Bits: 0b0001, TurretRot: 1.5, FireHeld: true}
	payload := wire.EncodeDatagram([]wire.Message{cmd})

	s.OnReceive(client.Conn, payload)

	s.world.Step(s.rules.TickRate)
	player, ok := s.world.Player(client.PlayerID)
	if !ok {
		t.Fatal("expected player to exist")
	}
	if player.TurretRotation != 1.5 {
		t.Fatalf("expected queued input to be applied, got turret rotation %v", player.TurretRotation)
	}
}

func TestOnTimeoutDisconnectsClient(t *testing.T) {
	s := newTestServer()
	client := s.Connect(xid.New())

	s.OnTimeout(client.Conn)

	if _, ok := s.world.Player(client.PlayerID); ok {
		t.Fatal("expected timed-out client's player to be removed")
	}
	if len(s.Clients()) != 0 {
		t.Fatalf("expected no clients remaining, got %d", len(s.Clients()))
	}
}

func peerOf(clientID int32) reliable.PeerID { return reliable.PeerID(clientID) }

func anySpawnFor(events []reliable.Event, subjectID uint32) bool {
	for _, evt := range events {
		if evt.Kind == reliable.SpawnPlayer && evt.SubjectID == subjectID {
			return true
		}
	}
	return false
}
