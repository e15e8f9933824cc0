package engine

import "errors"

// Engine errors.
// Use errors.Is() to check for these errors in calling code.
var (
	ErrNotConfigured   = errors.New("bridge credentials not configured")
	ErrRoomNotSelected = errors.New("no room selected")
	ErrUnknownRoom     = errors.New("unknown room")
	ErrNoGroupedLight  = errors.New("room has no grouped light")
	ErrUnknownLight    = errors.New("light is not part of the room")
	ErrNotDimmable     = errors.New("light cannot be dimmed")
	ErrUnknownScene    = errors.New("scene is not part of the room")
	ErrBadBrightness   = errors.New("brightness must be a finite number")
	ErrClosed          = errors.New("engine closed")
)
