// Package reliable implements the at-least-once, at-most-once-in-effect
// delivery layer for the server's spawn/destroy events. It sits directly on
// top of internal/netcode: every reliable event stays queued for a specific
// target client until some packet carrying it is acknowledged by that
// client, per spec. This generalizes the single reliable_events_ list and
// ring-buffered sent-message table from the original server_app.cc into an
// explicit, per-peer-scoped queue.
package reliable

import "github.com/jarskih/tanknet/core"

// Kind identifies which reliable event variant an Event carries.
type Kind int

const (
	SpawnPlayer Kind = iota
	SpawnProjectile
	DestroyPlayer
	DestroyProjectile
)

// PeerID identifies the client an event targets. It matches the server
// session's client id space.
type PeerID int32

// Event is one queued reliable event, addressed to a single peer.
type Event struct {
	ID           uint64
	Kind         Kind
	TargetClient PeerID
	SubjectID    uint32 // player id, or projectile id for the projectile variants
	Owner        uint32 // projectile owner; only meaningful for SpawnProjectile
	Position     core.Vector2
	Rotation     float32 // turret rotation at spawn; only meaningful for SpawnProjectile
}

type sentKey struct {
	peer     PeerID
	sequence uint16
}

// Queue holds reliable events pending acknowledgement, and the record of
// which events were carried on which (peer, sequence) packet.
type Queue struct {
	nextID uint64
	events map[uint64]Event
	sent   map[sentKey][]uint64
}

// NewQueue creates an empty reliable event queue.
func NewQueue() *Queue {
	return &Queue{
		events: make(map[uint64]Event),
		sent:   make(map[sentKey][]uint64),
	}
}

// Enqueue adds evt to the queue and returns the id it was assigned.
func (q *Queue) Enqueue(evt Event) uint64 {
	q.nextID++
	evt.ID = q.nextID
	q.events[evt.ID] = evt
	return evt.ID
}

// Pending returns every event currently queued for peer, in enqueue order is
// not guaranteed (map iteration), which is fine: the protocol resends every
// queued event on every outgoing packet until acked, so ordering between
// distinct events never matters.
func (q *Queue) Pending(peer PeerID) []Event {
	var out []Event
	for _, evt := range q.events {
		if evt.TargetClient == peer {
			out = append(out, evt)
		}
	}
	return out
}

// MarkSent records that the events in ids were carried in the packet sent to
// peer on sequence. Called once per outgoing packet, right after the events
// that packet will carry have been chosen.
func (q *Queue) MarkSent(peer PeerID, sequence uint16, ids []uint64) {
	if len(ids) == 0 {
		return
	}
	key := sentKey{peer: peer, sequence: sequence}
	q.sent[key] = append(q.sent[key], ids...)
}

// Acknowledge retires every event that was recorded as sent to peer on
// sequence. It is idempotent: acknowledging the same (peer, sequence) twice
// only removes entries once, since the second call finds nothing recorded.
func (q *Queue) Acknowledge(peer PeerID, sequence uint16) {
	key := sentKey{peer: peer, sequence: sequence}
	ids, ok := q.sent[key]
	if !ok {
		return
	}
	delete(q.sent, key)
	for _, id := range ids {
		delete(q.events, id)
	}
}

// RemovePeer drops every queued event and sent-record targeting peer, used
// when a client disconnects and its queue no longer matters.
func (q *Queue) RemovePeer(peer PeerID) {
	for id, evt := range q.events {
		if evt.TargetClient == peer {
			delete(q.events, id)
		}
	}
	for key := range q.sent {
		if key.peer == peer {
			delete(q.sent, key)
		}
	}
}

// Len reports how many events are currently queued (across all peers),
// primarily for tests and metrics.
func (q *Queue) Len() int {
	return len(q.events)
}
