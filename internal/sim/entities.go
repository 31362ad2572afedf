package sim

import (
	"time"

	"github.com/jarskih/tanknet/core"
)

// Input bits, matching the gameplay::Action enum order from the original
// prototype: bit 0 Up, bit 1 Down, bit 2 Left, bit 3 Right.
const (
	InputUp uint8 = 1 << iota
	InputDown
	InputLeft
	InputRight
)

// Player is one tank under authoritative simulation.
type Player struct {
	ID             uint32
	Transform      core.Transform
	TurretRotation float32

	InputBits     uint8
	FireRequested bool
	FireCooldown  time.Duration
}

// Collider returns the player's body AABB, centered on its position.
func (p *Player) Collider(rules Rules) core.AABB {
	return core.NewAABBCentered(p.Transform.Position, rules.BodyHalfExtents)
}

// ShootPosition is where a projectile this player fires spawns from: the
// tank's center offset along its facing by the rules' muzzle offset.
func (p *Player) ShootPosition(rules Rules) core.Vector2 {
	fwd := p.Transform.Forward()
	return p.Transform.Position.Add(fwd.Mul(rules.MuzzleOffset))
}

// Projectile is one in-flight shell.
type Projectile struct {
	ID                uint32
	Owner             uint32
	Transform         core.Transform
	Direction         core.Vector2 // unit vector, frozen at spawn
	Speed             float32
	LifetimeRemaining time.Duration
}

// Collider returns the projectile's AABB, centered on its position.
func (pr *Projectile) Collider(rules Rules) core.AABB {
	return core.NewAABBCentered(pr.Transform.Position, rules.ProjectileHalfExtents)
}

// InputCommand is one queued input sample awaiting application on the next
// tick, keyed by the player it came from.
type InputCommand struct {
	PlayerID       uint32
	Bits           uint8
	TurretRotation float32
	FireRequested  bool
}

// SpawnedProjectile describes a projectile a Step just created, for the
// caller to turn into reliable spawn events.
type SpawnedProjectile struct {
	ID       uint32
	Owner    uint32
	Position core.Vector2
	Rotation float32
}

// StepEvents reports what happened during one World.Step call that the
// caller (internal/serverapp) needs to react to beyond the world's own
// state: new projectiles to announce, and projectiles that no longer exist.
type StepEvents struct {
	SpawnedProjectiles   []SpawnedProjectile
	DestroyedProjectiles []uint32
}
