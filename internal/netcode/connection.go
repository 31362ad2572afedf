// Package netcode implements per-peer packet framing on top of an
// unreliable datagram transport: sequence numbers, an ack bitfield, and
// timeout detection. It is the Go-idiomatic generalization of the
// networking/server and networking/client connection glue in the original
// prototype, split out into its own reusable type instead of being inlined
// into each session's networking loop.
package netcode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// State is where a Connection sits in its Connecting -> Connected ->
// Disconnected lifecycle.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ackWindow bounds how many preceding remote sequences the header's bitfield
// reports, and how far behind the highest acknowledged sequence we still
// track individual acks for.
const ackWindow = 32

// Listener receives the events a Connection produces. A session installs
// itself as the Listener; the Connection never outlives the session that
// owns it, and holds no back-reference beyond this callback struct.
type Listener interface {
	// OnReceive is invoked with the application payload carried by an
	// ingested packet, after header parsing and ack bookkeeping.
	OnReceive(conn *Connection, payload []byte)
	// OnAcknowledge fires exactly once per (peer, sequence) the first time
	// that sequence is observed as acknowledged.
	OnAcknowledge(conn *Connection, sequence uint16)
	// OnTimeout fires once when the connection crosses its timeout
	// threshold without a received packet.
	OnTimeout(conn *Connection)
}

// Connection tracks one peer's sequence/ack state. It knows nothing about
// message contents; internal/wire owns the payload format.
type Connection struct {
	listener Listener
	metrics  *Metrics

	sendInterval time.Duration
	lastSendTime time.Time
	lastRecvTime time.Time

	state State

	localSequence uint16 // next sequence number we will send

	remoteSequence uint16 // highest sequence number received from the peer
	remoteAckBits  uint32 // preceding ackWindow remote sequences we've received
	haveRemoteAny  bool

	highestAcked uint16
	haveAckedAny bool
	acked        map[uint16]bool // sequences of ours the peer has acked, pruned to ackWindow
}

// NewConnection creates a Connection sending at sendInterval, reporting
// through listener. metrics may be nil.
func NewConnection(sendInterval time.Duration, listener Listener, metrics *Metrics) *Connection {
	return &Connection{
		listener:     listener,
		metrics:      metrics,
		sendInterval: sendInterval,
		state:        StateConnecting,
		acked:        make(map[uint16]bool, ackWindow),
	}
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State { return c.state }

// ShouldSend reports whether enough time has elapsed since the last send to
// emit another packet at the connection's configured send rate.
func (c *Connection) ShouldSend(now time.Time) bool {
	return c.lastSendTime.IsZero() || now.Sub(c.lastSendTime) >= c.sendInterval
}

// PeekNextSequence returns the sequence number the next packet will be sent
// with, without consuming it. Callers that need to tag reliable events with
// the sequence they're about to go out on (see internal/reliable) read this
// before calling Send.
func (c *Connection) PeekNextSequence() uint16 {
	return c.localSequence
}

// Send frames payload behind a connection header and advances the local
// sequence number and send clock. It does not check ShouldSend; callers are
// expected to gate on that themselves so that reliable-event bookkeeping and
// packet construction happen atomically from the caller's point of view.
func (c *Connection) Send(now time.Time, payload []byte) []byte {
	buf := new(bytes.Buffer)
	writeHeader(buf, c.localSequence, c.remoteSequence, c.remoteAckBits)
	buf.Write(payload)

	c.localSequence++
	c.lastSendTime = now
	if c.metrics != nil {
		c.metrics.packetsSent.Inc()
		c.metrics.bytesSent.Add(float64(buf.Len()))
	}
	return buf.Bytes()
}

// Ingest parses data's connection header, updates ack state, and hands the
// remaining application payload to the listener's OnReceive. now is used for
// timeout tracking and the Connecting->Connected transition.
func (c *Connection) Ingest(data []byte, now time.Time) error {
	r := bytes.NewReader(data)
	var seq, theirAckOfUs uint16
	var theirAckBits uint32
	if err := binary.Read(r, binary.LittleEndian, &seq); err != nil {
		c.dropPacket()
		return fmt.Errorf("netcode: reading sequence: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &theirAckOfUs); err != nil {
		c.dropPacket()
		return fmt.Errorf("netcode: reading ack: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &theirAckBits); err != nil {
		c.dropPacket()
		return fmt.Errorf("netcode: reading ack bits: %w", err)
	}

	payload := make([]byte, r.Len())
	if _, err := r.Read(payload); err != nil && r.Len() > 0 {
		c.dropPacket()
		return fmt.Errorf("netcode: reading payload: %w", err)
	}

	c.observeRemoteSequence(seq)
	c.observeAcks(theirAckOfUs, theirAckBits)

	wasConnecting := c.state == StateConnecting
	c.lastRecvTime = now
	if wasConnecting {
		c.state = StateConnected
	}

	if c.metrics != nil {
		c.metrics.packetsReceived.Inc()
		c.metrics.bytesReceived.Add(float64(len(data)))
	}

	if c.listener != nil {
		c.listener.OnReceive(c, payload)
	}
	return nil
}

// IsTimedOut reports whether no packet has been received for at least
// threshold, and fires OnTimeout exactly once when the connection crosses
// that boundary. A connection that has never received a packet is never
// reported as timed out.
func (c *Connection) IsTimedOut(now time.Time, threshold time.Duration) bool {
	if c.state == StateDisconnected {
		return true
	}
	if c.lastRecvTime.IsZero() {
		return false
	}
	if now.Sub(c.lastRecvTime) < threshold {
		return false
	}
	c.state = StateDisconnected
	if c.listener != nil {
		c.listener.OnTimeout(c)
	}
	return true
}

// dropPacket records a packet rejected during header parsing.
func (c *Connection) dropPacket() {
	if c.metrics != nil {
		c.metrics.packetsDropped.Inc()
	}
}

func (c *Connection) observeRemoteSequence(seq uint16) {
	if !c.haveRemoteAny {
		c.haveRemoteAny = true
		c.remoteSequence = seq
		c.remoteAckBits = 0
		return
	}

	if sequenceGreaterThan(seq, c.remoteSequence) {
		shift := seq - c.remoteSequence
		if shift >= ackWindow {
			c.remoteAckBits = 0
		} else {
			c.remoteAckBits = (c.remoteAckBits << shift) | (1 << (shift - 1))
		}
		c.remoteSequence = seq
		return
	}

	shift := c.remoteSequence - seq
	if shift > 0 && shift <= ackWindow {
		c.remoteAckBits |= 1 << (shift - 1)
	}
}

func (c *Connection) observeAcks(ackOfUs uint16, ackBits uint32) {
	if !c.haveAckedAny {
		c.haveAckedAny = true
		c.highestAcked = ackOfUs
	} else if sequenceGreaterThan(ackOfUs, c.highestAcked) {
		c.highestAcked = ackOfUs
	}

	c.markAcked(ackOfUs)
	for i := uint16(0); i < ackWindow; i++ {
		if ackBits&(1<<i) == 0 {
			continue
		}
		seq := ackOfUs - 1 - i
		c.markAcked(seq)
	}
	c.pruneAcked()
}

func (c *Connection) markAcked(seq uint16) {
	if c.acked[seq] {
		return
	}
	c.acked[seq] = true
	if c.listener != nil {
		c.listener.OnAcknowledge(c, seq)
	}
}

// pruneAcked drops bookkeeping for sequences far enough behind the highest
// acked sequence that they can never be referenced by a future ack bitfield
// again.
func (c *Connection) pruneAcked() {
	for seq := range c.acked {
		if c.highestAcked-seq > ackWindow {
			delete(c.acked, seq)
		}
	}
}

func writeHeader(buf *bytes.Buffer, sequence, remoteSequence uint16, remoteAckBits uint32) {
	_ = binary.Write(buf, binary.LittleEndian, sequence)
	_ = binary.Write(buf, binary.LittleEndian, remoteSequence)
	_ = binary.Write(buf, binary.LittleEndian, remoteAckBits)
}

// sequenceGreaterThan compares sequence numbers with wraparound, treating a
// sequence as "greater" if it is ahead by less than half the number space.
func sequenceGreaterThan(a, b uint16) bool {
	return (a > b && a-b <= 32768) || (a < b && b-a > 32768)
}

// HeaderSize is the number of bytes the connection header occupies ahead of
// the application payload: two u16 sequence fields and a u32 ack bitfield.
const HeaderSize = 2 + 2 + 4
