package sim

import (
	"time"

	"github.com/jarskih/tanknet/core"
)

// Rules collects the tunable constants a World is constructed with. They are
// frozen at NewWorld and never mutated mid-session. Defaults mirror
// charlie/include/config.h from the original prototype: PLAYER_SPEED,
// PLAYER_TURN_SPEED, FIRE_DELAY, PROJECTILE_SPEED and PROJECTILE_LIFETIME
// carry over verbatim. The original loaded its level bounds from a level
// data file this rewrite doesn't have; LevelWidth/LevelHeight here are a
// reasonable stand-in default rather than a value taken from config.h.
type Rules struct {
	TickRate time.Duration

	TankSpeed float32 // world units per second
	TurnSpeed float32 // radians per second

	FireDelay          time.Duration
	ProjectileSpeed    float32 // world units per second
	ProjectileLifetime time.Duration

	BodyHalfExtents       core.Vector2
	TurretHalfExtents     core.Vector2
	ProjectileHalfExtents core.Vector2
	MuzzleOffset          float32 // distance from tank center to the shoot point, along facing

	LevelWidth  float32
	LevelHeight float32
}

// DefaultRules returns the stock tuning values for a session.
func DefaultRules() Rules {
	return Rules{
		TickRate: time.Second / 60,

		TankSpeed: 100.0,
		TurnSpeed: 50.0,

		FireDelay:          2 * time.Second,
		ProjectileSpeed:    600.0,
		ProjectileLifetime: 3 * time.Second,

		BodyHalfExtents:       core.Vector2{X: 75, Y: 75},
		TurretHalfExtents:     core.Vector2{X: 75, Y: 75},
		ProjectileHalfExtents: core.Vector2{X: 12.5, Y: 12.5},
		MuzzleOffset:          75,

		LevelWidth:  2000,
		LevelHeight: 2000,
	}
}
