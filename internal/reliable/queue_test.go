package reliable

import (
	"testing"

	"github.com/jarskih/tanknet/core"
)

func TestPendingFiltersByTargetClient(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Event{Kind: SpawnPlayer, TargetClient: 1, SubjectID: 10})
	q.Enqueue(Event{Kind: SpawnPlayer, TargetClient: 2, SubjectID: 20})
	q.Enqueue(Event{Kind: DestroyPlayer, TargetClient: 1, SubjectID: 10})

	got := q.Pending(1)
	if len(got) != 2 {
		t.Fatalf("expected 2 events pending for client 1, got %d: %+v", len(got), got)
	}
	for _, evt := range got {
		if evt.TargetClient != 1 {
			t.Fatalf("Pending(1) returned event targeting %d", evt.TargetClient)
		}
	}
}

func TestAcknowledgeRetiresOnlySentEvents(t *testing.T) {
	q := NewQueue()
	id1 := q.Enqueue(Event{Kind: SpawnPlayer, TargetClient: 1, SubjectID: 10})
	q.Enqueue(Event{Kind: SpawnProjectile, TargetClient: 1, SubjectID: 99, Owner: 10, Position: core.Vector2{X: 1, Y: 1}})

	q.MarkSent(1, 0, []uint64{id1})
	q.Acknowledge(1, 0)

	if q.Len() != 1 {
		t.Fatalf("expected 1 event left after acking sequence 0, got %d", q.Len())
	}
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	q := NewQueue()
	id := q.Enqueue(Event{Kind: DestroyProjectile, TargetClient: 1, SubjectID: 5})
	q.MarkSent(1, 7, []uint64{id})

	q.Acknowledge(1, 7)
	if q.Len() != 0 {
		t.Fatalf("expected event retired after first ack, got %d remaining", q.Len())
	}

	// Second ack of the same sequence must not panic or misbehave: there is
	// nothing left to retire.
	q.Acknowledge(1, 7)
	if q.Len() != 0 {
		t.Fatalf("expected queue to remain empty after duplicate ack, got %d", q.Len())
	}
}

func TestPacketLossToleratesSpawnUntilAcked(t *testing.T) {
	q := NewQueue()
	id := q.Enqueue(Event{Kind: SpawnPlayer, TargetClient: 1, SubjectID: 42, Position: core.Vector2{X: 1, Y: 2}})

	// Packet carrying the spawn is sent on sequence 0 and lost: no ack
	// arrives. The event must still be pending on the next send.
	q.MarkSent(1, 0, []uint64{id})
	if len(q.Pending(1)) != 1 {
		t.Fatalf("expected spawn event still pending after simulated packet loss")
	}

	// Retransmit on sequence 1, this time it's acknowledged.
	q.MarkSent(1, 1, []uint64{id})
	q.Acknowledge(1, 1)
	if len(q.Pending(1)) != 0 {
		t.Fatalf("expected spawn event retired once its retransmission is acked")
	}
}

func TestRemovePeerDropsQueuedAndSentState(t *testing.T) {
	q := NewQueue()
	id := q.Enqueue(Event{Kind: SpawnPlayer, TargetClient: 1, SubjectID: 1})
	q.MarkSent(1, 0, []uint64{id})
	q.Enqueue(Event{Kind: SpawnPlayer, TargetClient: 2, SubjectID: 2})

	q.RemovePeer(1)

	if len(q.Pending(1)) != 0 {
		t.Fatalf("expected no events left pending for removed peer")
	}
	if len(q.Pending(2)) != 1 {
		t.Fatalf("expected peer 2's events to be unaffected")
	}

	// Acknowledging the removed peer's old sequence must be a no-op, not a
	// panic, since its sent record was dropped.
	q.Acknowledge(1, 0)
}
