// Package wire implements the closed set of tagged messages that flow
// between a tanknet server and client, and their little-endian, unpadded
// byte encoding. It is adapted from the networking/shared wire codec of the
// original prototype, generalized to the nine-variant taxonomy this protocol
// actually needs instead of a generic room/chat/lobby message envelope.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jarskih/tanknet/core"
)

// ErrMalformedMessage is returned when a decode encounters an unknown type
// tag or runs out of bytes mid-message. Per the protocol contract, the
// caller discards the remainder of the datagram and keeps whatever messages
// decoded successfully before the failure.
var ErrMalformedMessage = errors.New("wire: malformed message")

// Type identifies which of the nine message variants a tagged byte stream
// carries.
type Type uint8

const (
	TypeServerTick Type = iota
	TypeEntityState
	TypeInputCommand
	TypePlayerState
	TypePlayerSpawn
	TypeAck
	TypeProjectileSpawn
	TypePlayerDisconnected
	TypeProjectileDestroy

	typeCount
)

func (t Type) String() string {
	switch t {
	case TypeServerTick:
		return "ServerTick"
	case TypeEntityState:
		return "EntityState"
	case TypeInputCommand:
		return "InputCommand"
	case TypePlayerState:
		return "PlayerState"
	case TypePlayerSpawn:
		return "PlayerSpawn"
	case TypeAck:
		return "Ack"
	case TypeProjectileSpawn:
		return "ProjectileSpawn"
	case TypePlayerDisconnected:
		return "PlayerDisconnected"
	case TypeProjectileDestroy:
		return "ProjectileDestroy"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Message is implemented by every concrete wire message. encode/decode never
// write or read the type tag themselves — Encode/Decode at the package level
// own that framing byte.
type Message interface {
	Type() Type
	encode(buf *bytes.Buffer)
	decode(r *bytes.Reader) error
}

// ServerTick is the per-packet preamble a server sends: its current time and
// tick counter.
type ServerTick struct {
	ServerTime int64
	ServerTick uint32
}

func (m *ServerTick) Type() Type { return TypeServerTick }

func (m *ServerTick) encode(buf *bytes.Buffer) {
	writeLE(buf, m.ServerTime)
	writeLE(buf, m.ServerTick)
}

func (m *ServerTick) decode(r *bytes.Reader) error {
	if err := readLE(r, &m.ServerTime); err != nil {
		return err
	}
	return readLE(r, &m.ServerTick)
}

// EntityState is the authoritative pose of a player other than the
// recipient.
type EntityState struct {
	Position       core.Vector2
	Rotation       float32
	TurretRotation float32
	ID             uint32
}

func (m *EntityState) Type() Type { return TypeEntityState }

func (m *EntityState) encode(buf *bytes.Buffer) {
	writeLE(buf, m.Position.X)
	writeLE(buf, m.Position.Y)
	writeLE(buf, m.Rotation)
	writeLE(buf, m.TurretRotation)
	writeLE(buf, m.ID)
}

func (m *EntityState) decode(r *bytes.Reader) error {
	for _, dst := range []interface{}{&m.Position.X, &m.Position.Y, &m.Rotation, &m.TurretRotation, &m.ID} {
		if err := readLE(r, dst); err != nil {
			return err
		}
	}
	return nil
}

// InputCommand carries one tick's worth of client input.
type InputCommand struct {
	Bits      uint8
	TurretRot float32
	FireHeld  bool
}

func (m *InputCommand) Type() Type { return TypeInputCommand }

func (m *InputCommand) encode(buf *bytes.Buffer) {
	writeLE(buf, m.Bits)
	writeLE(buf, m.TurretRot)
	writeLE(buf, boolToByte(m.FireHeld))
}

func (m *InputCommand) decode(r *bytes.Reader) error {
	if err := readLE(r, &m.Bits); err != nil {
		return err
	}
	if err := readLE(r, &m.TurretRot); err != nil {
		return err
	}
	var fire uint8
	if err := readLE(r, &fire); err != nil {
		return err
	}
	m.FireHeld = fire != 0
	return nil
}

// PlayerState is the authoritative pose sent back to the player it belongs
// to, used for reconciliation.
type PlayerState struct {
	Rotation       float32
	Position       core.Vector2
	TurretRotation float32
}

func (m *PlayerState) Type() Type { return TypePlayerState }

func (m *PlayerState) encode(buf *bytes.Buffer) {
	writeLE(buf, m.Rotation)
	writeLE(buf, m.Position.X)
	writeLE(buf, m.Position.Y)
	writeLE(buf, m.TurretRotation)
}

func (m *PlayerState) decode(r *bytes.Reader) error {
	for _, dst := range []interface{}{&m.Rotation, &m.Position.X, &m.Position.Y, &m.TurretRotation} {
		if err := readLE(r, dst); err != nil {
			return err
		}
	}
	return nil
}

// PlayerSpawn is a reliable event announcing a new player.
type PlayerSpawn struct {
	Position  core.Vector2
	MessageID uint32 // == subject player id
}

func (m *PlayerSpawn) Type() Type { return TypePlayerSpawn }

func (m *PlayerSpawn) encode(buf *bytes.Buffer) {
	writeLE(buf, m.Position.X)
	writeLE(buf, m.Position.Y)
	writeLE(buf, m.MessageID)
}

func (m *PlayerSpawn) decode(r *bytes.Reader) error {
	for _, dst := range []interface{}{&m.Position.X, &m.Position.Y, &m.MessageID} {
		if err := readLE(r, dst); err != nil {
			return err
		}
	}
	return nil
}

// Ack acknowledges a reliable event by id.
type Ack struct {
	MessageID uint32
}

func (m *Ack) Type() Type { return TypeAck }

func (m *Ack) encode(buf *bytes.Buffer) { writeLE(buf, m.MessageID) }

func (m *Ack) decode(r *bytes.Reader) error { return readLE(r, &m.MessageID) }

// ProjectileSpawn is a reliable event announcing a new projectile.
type ProjectileSpawn struct {
	MessageID uint32
	Owner     uint32
	Position  core.Vector2
	Rotation  float32
}

func (m *ProjectileSpawn) Type() Type { return TypeProjectileSpawn }

func (m *ProjectileSpawn) encode(buf *bytes.Buffer) {
	writeLE(buf, m.MessageID)
	writeLE(buf, m.Owner)
	writeLE(buf, m.Position.X)
	writeLE(buf, m.Position.Y)
	writeLE(buf, m.Rotation)
}

func (m *ProjectileSpawn) decode(r *bytes.Reader) error {
	if err := readLE(r, &m.MessageID); err != nil {
		return err
	}
	if err := readLE(r, &m.Owner); err != nil {
		return err
	}
	for _, dst := range []interface{}{&m.Position.X, &m.Position.Y, &m.Rotation} {
		if err := readLE(r, dst); err != nil {
			return err
		}
	}
	return nil
}

// PlayerDisconnected is a reliable event announcing a player's departure.
type PlayerDisconnected struct {
	MessageID uint32 // == subject id
}

func (m *PlayerDisconnected) Type() Type { return TypePlayerDisconnected }

func (m *PlayerDisconnected) encode(buf *bytes.Buffer) { writeLE(buf, m.MessageID) }

func (m *PlayerDisconnected) decode(r *bytes.Reader) error { return readLE(r, &m.MessageID) }

// ProjectileDestroy is a reliable event announcing a projectile's removal.
type ProjectileDestroy struct {
	MessageID uint32
}

func (m *ProjectileDestroy) Type() Type { return TypeProjectileDestroy }

func (m *ProjectileDestroy) encode(buf *bytes.Buffer) { writeLE(buf, m.MessageID) }

func (m *ProjectileDestroy) decode(r *bytes.Reader) error { return readLE(r, &m.MessageID) }

// Encode appends msg's tag and payload to buf.
func Encode(buf *bytes.Buffer, msg Message) {
	writeLE(buf, uint8(msg.Type()))
	msg.encode(buf)
}

// EncodeDatagram concatenates every message in order into a single datagram
// payload.
func EncodeDatagram(messages []Message) []byte {
	buf := new(bytes.Buffer)
	for _, msg := range messages {
		Encode(buf, msg)
	}
	return buf.Bytes()
}

// DecodeDatagram decodes messages from data until it is exhausted or a
// message fails to decode. On failure it returns the messages decoded so
// far alongside ErrMalformedMessage; the caller discards the rest of the
// datagram per the protocol's error policy.
func DecodeDatagram(data []byte) ([]Message, error) {
	r := bytes.NewReader(data)
	var messages []Message
	for r.Len() > 0 {
		msg, err := decodeOne(r)
		if err != nil {
			return messages, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func decodeOne(r *bytes.Reader) (Message, error) {
	var tag uint8
	if err := readLE(r, &tag); err != nil {
		return nil, fmt.Errorf("%w: reading tag: %v", ErrMalformedMessage, err)
	}

	msg := newMessage(Type(tag))
	if msg == nil {
		return nil, fmt.Errorf("%w: unknown type tag %d", ErrMalformedMessage, tag)
	}
	if err := msg.decode(r); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrMalformedMessage, Type(tag), err)
	}
	return msg, nil
}

func newMessage(t Type) Message {
	switch t {
	case TypeServerTick:
		return &ServerTick{}
	case TypeEntityState:
		return &EntityState{}
	case TypeInputCommand:
		return &InputCommand{}
	case TypePlayerState:
		return &PlayerState{}
	case TypePlayerSpawn:
		return &PlayerSpawn{}
	case TypeAck:
		return &Ack{}
	case TypeProjectileSpawn:
		return &ProjectileSpawn{}
	case TypePlayerDisconnected:
		return &PlayerDisconnected{}
	case TypeProjectileDestroy:
		return &ProjectileDestroy{}
	default:
		return nil
	}
}

func writeLE(buf *bytes.Buffer, v interface{}) {
	// binary.Write never fails for the fixed-size numeric types this codec
	// uses; the error is only reachable for unsupported kinds, which would
	// be a programming error caught immediately by this package's tests.
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(fmt.Sprintf("wire: encoding %T: %v", v, err))
	}
}

func readLE(r *bytes.Reader, v interface{}) error {
	return binary.Read(r, binary.LittleEndian, v)
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
