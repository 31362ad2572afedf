// Package sim is the fixed-tickrate authoritative simulation: player
// movement, fire-rate gating, projectile integration and owner-exempt
// collision. It is the Go generalization of ServerApp::update_players,
// ServerApp::check_collisions and the Projectile/Player update methods from
// the original prototype, with no dependency on rendering, input, or
// networking — those are the caller's job.
package sim

import (
	"sort"
	"time"

	"github.com/jarskih/tanknet/core"
)

// World holds every player and projectile under simulation, plus the
// counters needed to assign fresh projectile ids.
type World struct {
	rules Rules

	tick             uint32
	nextProjectileID uint32

	players      map[uint32]*Player
	projectiles  map[uint32]*Projectile
	pendingInput []InputCommand
}

// NewWorld creates an empty world governed by rules.
func NewWorld(rules Rules) *World {
	return &World{
		rules:       rules,
		players:     make(map[uint32]*Player),
		projectiles: make(map[uint32]*Projectile),
	}
}

// Rules returns the world's frozen tuning constants.
func (w *World) Rules() Rules { return w.rules }

// Tick returns the current simulation tick, starting at 0 and incrementing
// once per Step.
func (w *World) Tick() uint32 { return w.tick }

// AddPlayer creates a player with id at position, facing rotation 0, and
// adds it to the world.
func (w *World) AddPlayer(id uint32, position core.Vector2) *Player {
	p := &Player{
		ID:        id,
		Transform: core.NewTransform(position, 0),
	}
	w.players[id] = p
	return p
}

// RemovePlayer removes a player from the world. A no-op if id is unknown.
func (w *World) RemovePlayer(id uint32) {
	delete(w.players, id)
}

// Player looks up a player by id.
func (w *World) Player(id uint32) (*Player, bool) {
	p, ok := w.players[id]
	return p, ok
}

// Players returns every player, ordered by id for deterministic iteration.
func (w *World) Players() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Projectile looks up a projectile by id.
func (w *World) Projectile(id uint32) (*Projectile, bool) {
	pr, ok := w.projectiles[id]
	return pr, ok
}

// Projectiles returns every in-flight projectile, ordered by id.
func (w *World) Projectiles() []*Projectile {
	out := make([]*Projectile, 0, len(w.projectiles))
	for _, pr := range w.projectiles {
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// QueueInput stages an input sample to be applied on the next Step. Samples
// for unknown players are applied as a no-op and discarded.
func (w *World) QueueInput(cmd InputCommand) {
	w.pendingInput = append(w.pendingInput, cmd)
}

// Step advances the world by exactly one fixed tick of duration dt (normally
// rules.TickRate). The order is fixed: drain queued input, move players,
// gate and spawn fire requests, integrate and expire projectiles, then
// resolve collisions. Removals are not deferred: an expired or hit
// projectile is deleted as soon as it is found, and players leave the world
// only through RemovePlayer, which takes effect immediately.
func (w *World) Step(dt time.Duration) StepEvents {
	w.tick++
	w.applyInput()

	seconds := float32(dt.Seconds())
	w.movePlayers(seconds)

	var events StepEvents
	w.handleFiring(seconds, &events)
	w.integrateProjectiles(dt, seconds, &events)
	w.resolveCollisions(&events)

	return events
}

func (w *World) applyInput() {
	for _, cmd := range w.pendingInput {
		p, ok := w.players[cmd.PlayerID]
		if !ok {
			continue
		}
		p.InputBits = cmd.Bits
		p.TurretRotation = cmd.TurretRotation
		p.FireRequested = cmd.FireRequested
	}
	w.pendingInput = w.pendingInput[:0]
}

func (w *World) movePlayers(seconds float32) {
	for _, p := range w.players {
		Move(&p.Transform, p.InputBits, w.rules, seconds)
	}
}

// Move applies one tick's worth of turn-then-translate movement to t
// according to bits and rules, then reverts the whole just-applied
// translation if the resulting collider lies outside the level bounds on
// either axis. It is exported so internal/clientapp can predict local
// movement with exactly the equations the authoritative World uses, instead
// of reimplementing them. Modeled on ServerApp::update_players in the
// original prototype: the X and Y checks run one after the other, and the Y
// check looks at the collider after any X revert, so a move from an
// in-bounds position that exits on both axes is reverted once.
func Move(t *core.Transform, bits uint8, rules Rules, seconds float32) {
	var direction float32
	var rotation float32

	if bits&InputUp != 0 {
		direction -= 1
	}
	if bits&InputDown != 0 {
		direction += 1
	}
	if bits&InputLeft != 0 {
		rotation -= 1
	}
	if bits&InputRight != 0 {
		rotation += 1
	}

	if rotation != 0 {
		t.SetRotation(t.Rotation + rotation*rules.TurnSpeed*seconds)
	}

	var delta core.Vector2
	if direction != 0 {
		delta = t.Forward().Mul(direction * rules.TankSpeed * seconds)
		t.Position = t.Position.Add(delta)
	}

	bounds := core.AABB{
		Min: core.Vector2{X: 0, Y: 0},
		Max: core.Vector2{X: rules.LevelWidth, Y: rules.LevelHeight},
	}
	collider := core.NewAABBCentered(t.Position, rules.BodyHalfExtents)
	if collider.Min.X < bounds.Min.X || collider.Max.X > bounds.Max.X {
		t.Position = t.Position.Sub(delta)
	}
	collider = core.NewAABBCentered(t.Position, rules.BodyHalfExtents)
	if collider.Min.Y < bounds.Min.Y || collider.Max.Y > bounds.Max.Y {
		t.Position = t.Position.Sub(delta)
	}
}

func (w *World) handleFiring(seconds float32, events *StepEvents) {
	cooldownStep := time.Duration(float64(seconds) * float64(time.Second))
	for _, p := range w.players {
		p.FireCooldown += cooldownStep
		if !p.FireRequested || p.FireCooldown < w.rules.FireDelay {
			continue
		}

		p.FireCooldown = 0

		id := w.nextProjectileID
		w.nextProjectileID++

		pos := p.ShootPosition(w.rules)
		facing := core.NewTransform(pos, p.TurretRotation)
		pr := &Projectile{
			ID:                id,
			Owner:             p.ID,
			Transform:         facing,
			Direction:         facing.Forward(),
			Speed:             w.rules.ProjectileSpeed,
			LifetimeRemaining: w.rules.ProjectileLifetime,
		}
		w.projectiles[id] = pr

		events.SpawnedProjectiles = append(events.SpawnedProjectiles, SpawnedProjectile{
			ID:       id,
			Owner:    p.ID,
			Position: pos,
			Rotation: p.TurretRotation,
		})
	}
}

func (w *World) integrateProjectiles(dt time.Duration, seconds float32, events *StepEvents) {
	for id, pr := range w.projectiles {
		pr.Transform.Position = pr.Transform.Position.Add(pr.Direction.Mul(pr.Speed * seconds))
		pr.LifetimeRemaining -= dt
		if pr.LifetimeRemaining <= 0 {
			delete(w.projectiles, id)
			events.DestroyedProjectiles = append(events.DestroyedProjectiles, id)
		}
	}
}

func (w *World) resolveCollisions(events *StepEvents) {
	for _, p := range w.players {
		playerCollider := p.Collider(w.rules)
		for id, pr := range w.projectiles {
			if pr.Owner == p.ID {
				continue
			}
			if !playerCollider.Overlaps(pr.Collider(w.rules)) {
				continue
			}
			delete(w.projectiles, id)
			events.DestroyedProjectiles = append(events.DestroyedProjectiles, id)
		}
	}
}
