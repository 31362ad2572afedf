package sim

import (
	"testing"
	"time"

	"github.com/jarskih/tanknet/core"
)

func testRules() Rules {
	r := DefaultRules()
	r.LevelWidth = 1000
	r.LevelHeight = 1000
	return r
}

func TestPlayerStaysWithinLevelBounds(t *testing.T) {
	w := NewWorld(testRules())
	p := w.AddPlayer(1, core.Vector2{X: 10, Y: 500})

	levelBounds := core.AABB{
		Min: core.Vector2{X: 0, Y: 0},
		Max: core.Vector2{X: w.rules.LevelWidth, Y: w.rules.LevelHeight},
	}

	for i := 0; i < 600; i++ { // far more ticks than needed to reach any edge
		w.QueueInput(InputCommand{PlayerID: 1, Bits: InputUp})
		w.Step(w.rules.TickRate)
	}

	collider := p.Collider(w.rules)
	if !collider.Within(levelBounds) {
		t.Fatalf("player escaped the level bounds: collider=%+v, bounds=%+v", collider, levelBounds)
	}
}

func TestMovementIsDeterministicGivenSameInput(t *testing.T) {
	rules := testRules()
	w1 := NewWorld(rules)
	w2 := NewWorld(rules)
	p1 := w1.AddPlayer(1, core.Vector2{X: 500, Y: 500})
	p2 := w2.AddPlayer(1, core.Vector2{X: 500, Y: 500})

	for i := 0; i < 10; i++ {
		w1.QueueInput(InputCommand{PlayerID: 1, Bits: InputUp | InputRight})
		w2.QueueInput(InputCommand{PlayerID: 1, Bits: InputUp | InputRight})
		w1.Step(rules.TickRate)
		w2.Step(rules.TickRate)
	}

	if p1.Transform.Position != p2.Transform.Position {
		t.Fatalf("identical input produced divergent positions: %+v vs %+v", p1.Transform.Position, p2.Transform.Position)
	}
	if p1.Transform.Rotation != p2.Transform.Rotation {
		t.Fatalf("identical input produced divergent rotation: %v vs %v", p1.Transform.Rotation, p2.Transform.Rotation)
	}
}

func TestFireGatingRespectsCooldown(t *testing.T) {
	rules := testRules()
	w := NewWorld(rules)
	p := w.AddPlayer(1, core.Vector2{X: 500, Y: 500})
	p.FireRequested = true

	spawns := 0
	ticksPerSecond := int(time.Second / rules.TickRate)
	totalTicks := ticksPerSecond * 5 // 5 seconds, should allow 2 shots at a 2s delay
	for i := 0; i < totalTicks; i++ {
		w.QueueInput(InputCommand{PlayerID: 1, FireRequested: true})
		events := w.Step(rules.TickRate)
		spawns += len(events.SpawnedProjectiles)
	}

	if spawns != 2 {
		t.Fatalf("expected exactly 2 shots fired in 5s at a 2s fire delay, got %d", spawns)
	}
}

func TestCollisionDestroysProjectileButNotOwner(t *testing.T) {
	rules := testRules()
	w := NewWorld(rules)
	shooter := w.AddPlayer(1, core.Vector2{X: 500, Y: 500})
	target := w.AddPlayer(2, core.Vector2{X: 500, Y: 500})
	_ = shooter

	id := w.nextProjectileID
	w.nextProjectileID++
	w.projectiles[id] = &Projectile{
		ID:                id,
		Owner:             1,
		Transform:         core.NewTransform(target.Transform.Position, 0),
		Direction:         core.Vector2{X: 0, Y: -1},
		Speed:             rules.ProjectileSpeed,
		LifetimeRemaining: rules.ProjectileLifetime,
	}

	events := w.Step(rules.TickRate)

	if _, stillAlive := w.Projectile(id); stillAlive {
		t.Fatalf("expected projectile to be destroyed on collision with a non-owner player")
	}
	if len(events.DestroyedProjectiles) != 1 || events.DestroyedProjectiles[0] != id {
		t.Fatalf("expected collision to report the destroyed projectile id, got %+v", events.DestroyedProjectiles)
	}
	if _, ok := w.Player(2); !ok {
		t.Fatalf("players are never removed by collision")
	}
}

func TestOwnerExemptFromOwnProjectile(t *testing.T) {
	rules := testRules()
	w := NewWorld(rules)
	owner := w.AddPlayer(1, core.Vector2{X: 500, Y: 500})

	id := w.nextProjectileID
	w.nextProjectileID++
	w.projectiles[id] = &Projectile{
		ID:                id,
		Owner:             1,
		Transform:         core.NewTransform(owner.Transform.Position, 0),
		Direction:         core.Vector2{X: 0, Y: -1},
		Speed:             rules.ProjectileSpeed,
		LifetimeRemaining: rules.ProjectileLifetime,
	}

	w.Step(rules.TickRate)

	if _, alive := w.Projectile(id); !alive {
		t.Fatalf("owner's own projectile should not collide with the owner")
	}
}

func TestProjectileExpiresAfterLifetime(t *testing.T) {
	rules := testRules()
	w := NewWorld(rules)

	id := w.nextProjectileID
	w.nextProjectileID++
	w.projectiles[id] = &Projectile{
		ID:                id,
		Owner:             99,
		Transform:         core.NewTransform(core.Vector2{X: 0, Y: 0}, 0),
		Direction:         core.Vector2{X: 1, Y: 0},
		Speed:             rules.ProjectileSpeed,
		LifetimeRemaining: 10 * time.Millisecond,
	}

	events := w.Step(rules.TickRate)

	if _, alive := w.Projectile(id); alive {
		t.Fatalf("expected projectile to expire once its lifetime elapses")
	}
	if len(events.DestroyedProjectiles) != 1 {
		t.Fatalf("expected expiry to be reported as a destroyed projectile")
	}
}

func TestStepIncrementsTickMonotonically(t *testing.T) {
	w := NewWorld(testRules())
	if w.Tick() != 0 {
		t.Fatalf("expected new world to start at tick 0, got %d", w.Tick())
	}
	for i := uint32(1); i <= 5; i++ {
		w.Step(w.rules.TickRate)
		if w.Tick() != i {
			t.Fatalf("expected tick %d, got %d", i, w.Tick())
		}
	}
}

func TestQueueInputForUnknownPlayerIsANoOp(t *testing.T) {
	w := NewWorld(testRules())
	w.QueueInput(InputCommand{PlayerID: 404, Bits: InputUp})
	// Must not panic, and must not create a player as a side effect.
	w.Step(w.rules.TickRate)
	if _, ok := w.Player(404); ok {
		t.Fatalf("queueing input for an unknown player must not create one")
	}
}
