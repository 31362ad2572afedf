// Package clientapp is the client session: local prediction of the player's
// own movement, reconciliation against the server's authoritative state,
// and interpolation of every other entity's position. It is the Go
// generalization of ClientApp from the original prototype
// (predict_movement/reconcile_state/on_receive), rid of rendering, input
// polling and room/lobby concerns.
package clientapp

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jarskih/tanknet/core"
	"github.com/jarskih/tanknet/internal/netcode"
	"github.com/jarskih/tanknet/internal/sim"
	"github.com/jarskih/tanknet/internal/wire"
)

// Config collects the tunables a Client is constructed with.
type Config struct {
	Rules                 sim.Rules
	SendInterval          time.Duration // default 1/10s, half the server's rate
	InterpolationWindow   time.Duration // default 200ms
	ReconciliationEpsilon float32       // default 5 world units, either axis
}

// DefaultConfig returns the stock client configuration.
func DefaultConfig() Config {
	return Config{
		Rules:                 sim.DefaultRules(),
		SendInterval:          time.Second / 10,
		InterpolationWindow:   200 * time.Millisecond,
		ReconciliationEpsilon: 5,
	}
}

// InputSnapshot is one tick's recorded input and the position it produced,
// retained until the server acknowledges having applied that tick.
type InputSnapshot struct {
	Tick               uint32
	InputBits          uint8
	TurretRotation     float32
	PositionAfterApply core.Vector2
}

// Client is one player's client-side session.
type Client struct {
	log     *logrus.Logger
	cfg     Config
	rules   sim.Rules
	metrics *netcode.Metrics

	localTick      uint32
	local          core.Transform
	localTurret    float32
	pendingHistory []InputSnapshot

	lastKnownServerTick uint32
	lastKnownServerTime int64
	lastSendTime        time.Time
	rttEstimate         time.Duration

	mispredictions uint64

	players     map[uint32]*remoteEntity
	projectiles map[uint32]*localProjectile

	pendingAcks []uint32
}

// remoteEntity tracks another player's recent authoritative positions, for
// interpolated rendering.
type remoteEntity struct {
	id          uint32
	snapshots   []positionSnapshot // at most the 2 most recent
	accumulator time.Duration
	displayed   core.Transform
	turret      float32
}

type positionSnapshot struct {
	serverTime     int64
	position       core.Vector2
	rotation       float32
	turretRotation float32
}

// localProjectile is a projectile this client knows about only through
// SpawnProjectile/DestroyProjectile reliable events: its motion is
// extrapolated locally from the spawn pose using the same rules the server
// simulates with, since no further position updates are ever sent for it.
type localProjectile struct {
	id        uint32
	owner     uint32
	transform core.Transform
	direction core.Vector2
	remaining time.Duration
}

// NewClient creates a Client whose local player starts at position. metrics
// may be nil; when present, it receives the round-trip-time histogram
// samples HandleDatagram computes from each ServerTick.
func NewClient(cfg Config, log *logrus.Logger, metrics *netcode.Metrics, position core.Vector2) *Client {
	return &Client{
		log:         log,
		cfg:         cfg,
		rules:       cfg.Rules,
		metrics:     metrics,
		local:       core.NewTransform(position, 0),
		players:     make(map[uint32]*remoteEntity),
		projectiles: make(map[uint32]*localProjectile),
	}
}

// LocalTransform returns the locally predicted pose of this client's own
// player, for rendering before any reconciliation has occurred this tick.
func (c *Client) LocalTransform() core.Transform { return c.local }

// Mispredictions reports how many times reconciliation has had to correct
// the local prediction, for diagnostics.
func (c *Client) Mispredictions() uint64 { return c.mispredictions }

// Tick runs one fixed simulation step: it predicts the local player's
// movement from the given input, records the resulting InputSnapshot, and
// advances every remote entity's interpolation accumulator.
func (c *Client) Tick(bits uint8, turretRotation float32, dt time.Duration) {
	seconds := float32(dt.Seconds())
	sim.Move(&c.local, bits, c.rules, seconds)
	c.localTurret = turretRotation

	c.localTick++
	c.pendingHistory = append(c.pendingHistory, InputSnapshot{
		Tick:               c.localTick,
		InputBits:          bits,
		TurretRotation:     turretRotation,
		PositionAfterApply: c.local.Position,
	})

	for _, entity := range c.players {
		entity.accumulator += dt
		t := float32(entity.accumulator) / float32(c.cfg.InterpolationWindow)
		if t > 1 {
			t = 1
		}
		if t < 0 {
			t = 0
		}
		entity.displayed = interpolate(entity.snapshots, t)
	}

	for id, proj := range c.projectiles {
		proj.transform.Position = proj.transform.Position.Add(proj.direction.Mul(c.rules.ProjectileSpeed * seconds))
		proj.remaining -= dt
		if proj.remaining <= 0 {
			delete(c.projectiles, id)
		}
	}
}

func interpolate(snapshots []positionSnapshot, t float32) core.Transform {
	switch len(snapshots) {
	case 0:
		return core.Transform{}
	case 1:
		return core.NewTransform(snapshots[0].position, snapshots[0].rotation)
	default:
		from := snapshots[len(snapshots)-2]
		to := snapshots[len(snapshots)-1]
		pos := from.position.Lerp(to.position, t)
		rot := from.rotation + (to.rotation-from.rotation)*t
		return core.NewTransform(pos, rot)
	}
}

// RemoteTransform returns the interpolated display pose for another
// player's entity, if known.
func (c *Client) RemoteTransform(id uint32) (core.Transform, bool) {
	entity, ok := c.players[id]
	if !ok {
		return core.Transform{}, false
	}
	return entity.displayed, true
}

// RecordSend notes the wall-clock time an outgoing packet was sent, for the
// round-trip-time estimate updated the next time a ServerTick arrives.
func (c *Client) RecordSend(now time.Time) {
	c.lastSendTime = now
}

// PendingAcks drains the application-level acks queued by spawn/destroy
// handling below, for the caller to attach as wire.Ack messages on its next
// outgoing packet.
func (c *Client) PendingAcks() []uint32 {
	acks := c.pendingAcks
	c.pendingAcks = nil
	return acks
}

// HandleDatagram decodes and dispatches every message in a server datagram,
// in order. ServerTick is expected first, since the server always puts it
// there; the tick it carries is what PlayerState reconciliation within the
// same datagram is measured against.
func (c *Client) HandleDatagram(data []byte, now time.Time) {
	messages, err := wire.DecodeDatagram(data)
	if err != nil {
		c.log.WithField("error", err).Warn("malformed server datagram")
	}

	currentServerTick := c.lastKnownServerTick
	for _, msg := range messages {
		switch m := msg.(type) {
		case *wire.ServerTick:
			currentServerTick = m.ServerTick
			c.lastKnownServerTick = m.ServerTick
			c.lastKnownServerTime = m.ServerTime
			if !c.lastSendTime.IsZero() {
				sample := now.Sub(c.lastSendTime)
				if c.rttEstimate == 0 {
					c.rttEstimate = sample
				} else {
					c.rttEstimate = c.rttEstimate + (sample-c.rttEstimate)/10
				}
				if c.metrics != nil {
					c.metrics.ObserveRoundTrip(sample)
				}
			}
		case *wire.PlayerState:
			c.reconcile(currentServerTick, m)
		case *wire.EntityState:
			c.applyEntityState(m)
		case *wire.PlayerSpawn:
			// Fixed from the original prototype, where this case fell
			// through to the "unknown message" branch instead of being
			// handled.
			c.spawnPlayer(m)
		case *wire.ProjectileSpawn:
			c.spawnProjectile(m)
		case *wire.PlayerDisconnected:
			c.destroyPlayer(m)
		case *wire.ProjectileDestroy:
			c.destroyProjectile(m)
		case *wire.Ack:
			// Servers never send Ack; ignore rather than warn, matching the
			// closed set of messages a client should only ever receive.
		default:
			c.log.WithField("type", msg.Type()).Warn("unexpected message type from server")
		}
	}
}

// reconcile corrects the local prediction if it has drifted from the
// server's authoritative position for serverTick by more than the
// configured epsilon on either axis, replaying every retained input snapshot
// newer than serverTick from the corrected position. Snapshots at or before
// serverTick are pruned either way, since the server has now confirmed them.
func (c *Client) reconcile(serverTick uint32, auth *wire.PlayerState) {
	recorded, found := c.snapshotAt(serverTick)

	if found {
		dx := auth.Position.X - recorded.PositionAfterApply.X
		dy := auth.Position.Y - recorded.PositionAfterApply.Y
		if abs32(dx) > c.cfg.ReconciliationEpsilon || abs32(dy) > c.cfg.ReconciliationEpsilon {
			c.mispredictions++
			c.local = core.NewTransform(auth.Position, auth.Rotation)
			c.localTurret = auth.TurretRotation

			seconds := float32(c.rules.TickRate.Seconds())
			for i := range c.pendingHistory {
				snap := &c.pendingHistory[i]
				if snap.Tick <= serverTick {
					continue
				}
				sim.Move(&c.local, snap.InputBits, c.rules, seconds)
				snap.PositionAfterApply = c.local.Position
			}
		}
	}

	c.prunePendingHistory(serverTick)
}

func (c *Client) snapshotAt(tick uint32) (InputSnapshot, bool) {
	for _, snap := range c.pendingHistory {
		if snap.Tick == tick {
			return snap, true
		}
	}
	return InputSnapshot{}, false
}

func (c *Client) prunePendingHistory(serverTick uint32) {
	kept := c.pendingHistory[:0]
	for _, snap := range c.pendingHistory {
		if snap.Tick > serverTick {
			kept = append(kept, snap)
		}
	}
	c.pendingHistory = kept
}

func (c *Client) applyEntityState(m *wire.EntityState) {
	entity, ok := c.players[m.ID]
	if !ok {
		entity = &remoteEntity{id: m.ID}
		c.players[m.ID] = entity
	}
	entity.snapshots = append(entity.snapshots, positionSnapshot{
		position:       m.Position,
		rotation:       m.Rotation,
		turretRotation: m.TurretRotation,
	})
	if len(entity.snapshots) > 2 {
		entity.snapshots = entity.snapshots[len(entity.snapshots)-2:]
	}
	entity.turret = m.TurretRotation
	entity.accumulator = 0
}

func (c *Client) spawnPlayer(m *wire.PlayerSpawn) {
	if _, ok := c.players[m.MessageID]; !ok {
		c.players[m.MessageID] = &remoteEntity{
			id:        m.MessageID,
			snapshots: []positionSnapshot{{position: m.Position}},
			displayed: core.NewTransform(m.Position, 0),
		}
	}
	c.pendingAcks = append(c.pendingAcks, m.MessageID)
}

func (c *Client) destroyPlayer(m *wire.PlayerDisconnected) {
	delete(c.players, m.MessageID)
	c.pendingAcks = append(c.pendingAcks, m.MessageID)
}

func (c *Client) spawnProjectile(m *wire.ProjectileSpawn) {
	if _, ok := c.projectiles[m.MessageID]; !ok {
		facing := core.NewTransform(m.Position, m.Rotation)
		c.projectiles[m.MessageID] = &localProjectile{
			id:        m.MessageID,
			owner:     m.Owner,
			transform: facing,
			direction: facing.Forward(),
			remaining: c.rules.ProjectileLifetime,
		}
	}
	c.pendingAcks = append(c.pendingAcks, m.MessageID)
}

func (c *Client) destroyProjectile(m *wire.ProjectileDestroy) {
	delete(c.projectiles, m.MessageID)
	c.pendingAcks = append(c.pendingAcks, m.MessageID)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
