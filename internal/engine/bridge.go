package engine

import (
	"context"
	"io"
	"time"

	"github.com/dokzlo13/roomlight/internal/hue"
)

// Bridge is the part of the transport the engine drives.
// *hue.Client satisfies it.
type Bridge interface {
	Connect(ctx context.Context) error

	FetchLights(ctx context.Context) ([]hue.Light, error)
	FetchRooms(ctx context.Context) ([]hue.Room, error)
	FetchRoom(ctx context.Context, id string) (*hue.Room, error)
	FetchScenes(ctx context.Context) ([]hue.Scene, error)
	FetchGroupedLight(ctx context.Context, id string) (*hue.GroupedLight, error)

	SetLightOn(ctx context.Context, id string, on bool) error
	SetLightBrightness(ctx context.Context, id string, brightness float64) error
	SetGroupedLightOn(ctx context.Context, id string, on bool) error
	SetGroupedLightBrightness(ctx context.Context, id string, brightness float64) error
	ActivateScene(ctx context.Context, id string) error

	OpenEventStream(ctx context.Context) (io.ReadCloser, error)
	Close()
}

// BridgeFactory builds a Bridge for a stored address and application key.
type BridgeFactory func(address, key string) Bridge

// HueBridgeFactory returns a factory producing real bridge clients.
func HueBridgeFactory(timeout time.Duration) BridgeFactory {
	return func(address, key string) Bridge {
		return hue.NewClient(address, key, timeout)
	}
}
