// Package host declares the collaborator contracts the simulation core
// needs from a front-end, without depending on any of them: rendering,
// input polling, and level/asset loading. The original prototype had these
// concerns built directly into ServerApp/ClientApp (SDL rendering,
// SDL_Scancode input, a LevelManager); this module keeps them as interfaces
// so a future front-end can supply its own implementation, per spec.
package host

import "github.com/jarskih/tanknet/core"

// InputSource reports the current input state for one tick. A real
// implementation polls a keyboard or controller; tests and headless
// deployments can stub it.
type InputSource interface {
	// Bits returns the movement bitmask (see internal/sim's InputUp et al).
	Bits() uint8
	// TurretRotation returns the desired turret facing, in radians.
	TurretRotation() float32
	// FireRequested reports whether the fire control is currently held.
	FireRequested() bool
}

// Renderer draws the current frame. The simulation core never calls these
// itself; a front-end's game loop calls them once per render frame, using
// state read from internal/clientapp or internal/serverapp.
type Renderer interface {
	DrawPlayer(position core.Vector2, rotation, turretRotation float32)
	DrawProjectile(position core.Vector2, rotation float32)
	Present()
}

// LevelLoader supplies the level bounds a World's Rules should use. The
// original prototype loaded a level file (config::LEVEL1) through its own
// LevelManager; this module has no file format opinion; a front-end
// resolves one and reports the resulting playable area.
type LevelLoader interface {
	LoadLevel(path string) (width, height float32, err error)
}
