// Package serverapp is the authoritative server session: it owns the
// simulation world, the per-client connections, and the reliable event
// queue, and wires incoming wire messages and outgoing packets between them.
// It is the Go generalization of ServerApp from the original prototype
// (on_connect/on_receive/on_send/on_timeout/on_disconnect), rid of its
// rendering, room and lobby concerns, which are explicitly out of scope.
package serverapp

import (
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/jarskih/tanknet/core"
	"github.com/jarskih/tanknet/internal/netcode"
	"github.com/jarskih/tanknet/internal/reliable"
	"github.com/jarskih/tanknet/internal/sim"
	"github.com/jarskih/tanknet/internal/wire"
)

// clientRecord binds one connected client's transport connection to its
// player in the world.
type clientRecord struct {
	ID       int32
	Handle   xid.ID
	PlayerID uint32
	Conn     *netcode.Connection
}

// Server is the authoritative session. One Server exists per running game.
type Server struct {
	log   *logrus.Logger
	rules sim.Rules
	world *sim.World

	reliableQueue *reliable.Queue
	connMetrics   *netcode.Metrics

	sendInterval     time.Duration
	timeoutThreshold time.Duration

	nextClientID int32
	nextPlayerID uint32

	clients map[int32]*clientRecord
	byConn  map[*netcode.Connection]int32
}

// Config collects the tunables a Server is constructed with.
type Config struct {
	Rules            sim.Rules
	SendInterval     time.Duration // default 1/20s, matching the original's set_send_rate
	TimeoutThreshold time.Duration // default 5x SendInterval
}

// DefaultConfig returns the stock server configuration.
func DefaultConfig() Config {
	sendInterval := time.Second / 20
	return Config{
		Rules:            sim.DefaultRules(),
		SendInterval:     sendInterval,
		TimeoutThreshold: 5 * sendInterval,
	}
}

// NewServer creates a Server. reg registers the per-connection packet/byte
// counters; log receives every non-fatal diagnostic the session produces.
func NewServer(cfg Config, reg prometheus.Registerer, log *logrus.Logger) *Server {
	return &Server{
		log:              log,
		rules:            cfg.Rules,
		world:            sim.NewWorld(cfg.Rules),
		reliableQueue:    reliable.NewQueue(),
		connMetrics:      netcode.NewMetrics(reg, "server"),
		sendInterval:     cfg.SendInterval,
		timeoutThreshold: cfg.TimeoutThreshold,
		clients:          make(map[int32]*clientRecord),
		byConn:           make(map[*netcode.Connection]int32),
	}
}

// Connect admits a new client identified by the opaque handle, spawns its
// player at a random in-bounds position, and fans out SpawnPlayer reliable
// events both directions against every pre-existing player, matching
// ServerApp::on_connect.
func (s *Server) Connect(handle xid.ID) *clientRecord {
	clientID := s.nextClientID
	s.nextClientID++

	playerID := s.nextPlayerID
	s.nextPlayerID++

	half := s.rules.BodyHalfExtents
	pos := core.Vector2{
		X: half.X + rand.Float32()*(s.rules.LevelWidth-2*half.X),
		Y: half.Y + rand.Float32()*(s.rules.LevelHeight-2*half.Y),
	}
	s.world.AddPlayer(playerID, pos)

	record := &clientRecord{ID: clientID, Handle: handle, PlayerID: playerID}
	record.Conn = netcode.NewConnection(s.sendInterval, s, s.connMetrics)

	for _, existing := range s.clients {
		existingPlayer, ok := s.world.Player(existing.PlayerID)
		if !ok {
			continue
		}
		// Tell the new client about every existing player...
		s.reliableQueue.Enqueue(reliable.Event{
			Kind:         reliable.SpawnPlayer,
			TargetClient: reliable.PeerID(clientID),
			SubjectID:    existingPlayer.ID,
			Position:     existingPlayer.Transform.Position,
		})
		// ...and every existing client about the new player.
		s.reliableQueue.Enqueue(reliable.Event{
			Kind:         reliable.SpawnPlayer,
			TargetClient: reliable.PeerID(existing.ID),
			SubjectID:    playerID,
			Position:     pos,
		})
	}

	s.clients[clientID] = record
	s.byConn[record.Conn] = clientID

	s.log.WithFields(logrus.Fields{"client_id": clientID, "player_id": playerID}).Info("player joined")
	return record
}

// Disconnect removes a client's player from the world and fans out a
// DestroyPlayer reliable event to every remaining client, matching
// ServerApp::on_disconnect / on_timeout.
func (s *Server) Disconnect(clientID int32) {
	record, ok := s.clients[clientID]
	if !ok {
		return
	}

	s.world.RemovePlayer(record.PlayerID)
	s.reliableQueue.RemovePeer(reliable.PeerID(clientID))

	for _, other := range s.clients {
		if other.ID == clientID {
			continue
		}
		s.reliableQueue.Enqueue(reliable.Event{
			Kind:         reliable.DestroyPlayer,
			TargetClient: reliable.PeerID(other.ID),
			SubjectID:    record.PlayerID,
		})
	}

	delete(s.clients, clientID)
	delete(s.byConn, record.Conn)

	s.log.WithFields(logrus.Fields{"client_id": clientID, "players": len(s.clients)}).Info("player disconnected")
}

// Step advances the simulation by one fixed tick and turns whatever happened
// (projectile spawns, expiries, collisions) into reliable events fanned out
// to clients: spawns skip the owner (who already knows via prediction),
// destroys fan to everyone, matching create_spawn_event/create_destroy_event.
func (s *Server) Step(dt time.Duration) {
	events := s.world.Step(dt)

	for _, spawned := range events.SpawnedProjectiles {
		for _, client := range s.clients {
			if client.PlayerID == spawned.Owner {
				continue
			}
			s.reliableQueue.Enqueue(reliable.Event{
				Kind:         reliable.SpawnProjectile,
				TargetClient: reliable.PeerID(client.ID),
				SubjectID:    spawned.ID,
				Owner:        spawned.Owner,
				Position:     spawned.Position,
				Rotation:     spawned.Rotation,
			})
		}
	}

	for _, destroyedID := range events.DestroyedProjectiles {
		for _, client := range s.clients {
			s.reliableQueue.Enqueue(reliable.Event{
				Kind:         reliable.DestroyProjectile,
				TargetClient: reliable.PeerID(client.ID),
				SubjectID:    destroyedID,
			})
		}
	}
}

// OnReceive implements netcode.Listener. It decodes the datagram payload and
// dispatches each message: InputCommand feeds the simulation's input queue;
// Ack is logged only, since reliable-event retirement is driven by the
// transport-level OnAcknowledge callback below, not by the application-level
// Ack message's contents (the original prototype has the same property:
// on_receive's ACK case consults connection->acknowledge_, never
// message.message_id_).
func (s *Server) OnReceive(conn *netcode.Connection, payload []byte) {
	clientID, ok := s.byConn[conn]
	if !ok {
		return
	}
	client := s.clients[clientID]

	messages, err := wire.DecodeDatagram(payload)
	if err != nil {
		s.log.WithFields(logrus.Fields{"client_id": clientID, "error": err}).Warn("malformed datagram")
	}

	for _, msg := range messages {
		switch m := msg.(type) {
		case *wire.InputCommand:
			s.world.QueueInput(sim.InputCommand{
				PlayerID:       client.PlayerID,
				Bits:           m.Bits,
				TurretRotation: m.TurretRot,
				FireRequested:  m.FireHeld,
			})
		case *wire.Ack:
			s.log.WithFields(logrus.Fields{"client_id": clientID, "message_id": m.MessageID}).Debug("received application ack")
		default:
			s.log.WithFields(logrus.Fields{"client_id": clientID, "type": msg.Type()}).Warn("unexpected message type from client")
		}
	}
}

// OnAcknowledge implements netcode.Listener: once a sequence is confirmed
// delivered, every reliable event carried on it is retired.
func (s *Server) OnAcknowledge(conn *netcode.Connection, sequence uint16) {
	clientID, ok := s.byConn[conn]
	if !ok {
		return
	}
	s.reliableQueue.Acknowledge(reliable.PeerID(clientID), sequence)
}

// OnTimeout implements netcode.Listener.
func (s *Server) OnTimeout(conn *netcode.Connection) {
	clientID, ok := s.byConn[conn]
	if !ok {
		return
	}
	s.Disconnect(clientID)
}

// BuildOutgoingPacket composes one client's next packet: the ServerTick
// preamble, its due reliable events (recorded against the sequence they're
// about to be sent on), the PlayerState for its own player, and an
// EntityState for every other player. Matches ServerApp::on_send.
func (s *Server) BuildOutgoingPacket(clientID int32, now time.Time) ([]byte, bool) {
	client, ok := s.clients[clientID]
	if !ok {
		return nil, false
	}
	player, ok := s.world.Player(client.PlayerID)
	if !ok {
		return nil, false
	}

	var messages []wire.Message
	messages = append(messages, &wire.ServerTick{
		ServerTime: now.UnixNano(),
		ServerTick: s.world.Tick(),
	})

	pending := s.reliableQueue.Pending(reliable.PeerID(clientID))
	if len(pending) > 0 {
		sequence := client.Conn.PeekNextSequence()
		ids := make([]uint64, 0, len(pending))
		for _, evt := range pending {
			messages = append(messages, eventToMessage(evt))
			ids = append(ids, evt.ID)
		}
		s.reliableQueue.MarkSent(reliable.PeerID(clientID), sequence, ids)
	}

	messages = append(messages, &wire.PlayerState{
		Rotation:       player.Transform.Rotation,
		Position:       player.Transform.Position,
		TurretRotation: player.TurretRotation,
	})

	for _, other := range s.world.Players() {
		if other.ID == player.ID {
			continue
		}
		messages = append(messages, &wire.EntityState{
			Position:       other.Transform.Position,
			Rotation:       other.Transform.Rotation,
			TurretRotation: other.TurretRotation,
			ID:             other.ID,
		})
	}

	payload := wire.EncodeDatagram(messages)
	return client.Conn.Send(now, payload), true
}

// TimeoutThreshold returns how long a client may go without a received
// packet before the caller should treat its connection as timed out.
func (s *Server) TimeoutThreshold() time.Duration { return s.timeoutThreshold }

// Clients returns the client ids currently connected, for the caller's send
// loop to iterate.
func (s *Server) Clients() []int32 {
	ids := make([]int32, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionFor returns the transport connection for clientID, for the
// caller's timeout-check and send-gating loop.
func (s *Server) ConnectionFor(clientID int32) (*netcode.Connection, bool) {
	record, ok := s.clients[clientID]
	if !ok {
		return nil, false
	}
	return record.Conn, true
}

func eventToMessage(evt reliable.Event) wire.Message {
	switch evt.Kind {
	case reliable.SpawnPlayer:
		return &wire.PlayerSpawn{Position: evt.Position, MessageID: evt.SubjectID}
	case reliable.SpawnProjectile:
		return &wire.ProjectileSpawn{MessageID: evt.SubjectID, Owner: evt.Owner, Position: evt.Position, Rotation: evt.Rotation}
	case reliable.DestroyPlayer:
		return &wire.PlayerDisconnected{MessageID: evt.SubjectID}
	case reliable.DestroyProjectile:
		return &wire.ProjectileDestroy{MessageID: evt.SubjectID}
	default:
		panic("serverapp: unknown reliable event kind")
	}
}
