package hue

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplicationKeyHeader carries the per-session application credential.
const ApplicationKeyHeader = "hue-application-key"

// Client is the transport to one bridge (CLIP v2).
// It is HTTP-only with no caching and no retries; retry policy lives in callers.
type Client struct {
	address      string
	token        string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a bridge client.
// The bridge presents a self-signed certificate, so verification is skipped;
// requests are only ever built for the configured address and redirects
// to any other host are refused.
func NewClient(address, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	sameHost := func(req *http.Request, via []*http.Request) error {
		if req.URL.Host != address {
			return fmt.Errorf("refusing redirect to %s", req.URL.Host)
		}
		return nil
	}

	return &Client{
		address: address,
		token:   token,
		httpClient: &http.Client{
			Timeout:       timeout,
			Transport:     transport,
			CheckRedirect: sameHost,
		},
		streamClient: &http.Client{
			// No timeout for the event stream - it's a long-lived connection
			Transport:     transport,
			CheckRedirect: sameHost,
		},
	}
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("https://%s/clip/v2/%s", c.address, path)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, url, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, unavailable(method, path, err)
	}
	req.Header.Set(ApplicationKeyHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, unavailable(method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	return resp, nil
}

// Connect checks that the bridge is reachable and accepts the application key.
func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, c.url("resource"), "resource", nil, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Hue bridge: %w", err)
	}
	resp.Body.Close()
	return nil
}

// FetchList performs a GET on a resource collection and returns its data items.
func FetchList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, c.url(path), path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result Response[T]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, decodeFailure(path, err)
	}

	if len(result.Errors) > 0 {
		log.Debug().
			Str("path", path).
			Interface("errors", result.Errors).
			Msg("Bridge reported errors")
	}

	return result.Data, nil
}

// FetchOne performs a GET on a single resource.
// An empty data list yields ErrNotFound.
func FetchOne[T any](ctx context.Context, c *Client, path string) (*T, error) {
	items, err := FetchList[T](ctx, c, path)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, notFound(path)
	}
	return &items[0], nil
}

// Write PUTs a JSON body to a resource.
func (c *Client) Write(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	resp, err := c.do(ctx, c.httpClient, http.MethodPut, c.url(path), path, bytes.NewReader(payload), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// OpenEventStream opens the push event stream and returns its raw body.
// The connection stays open until the bridge closes it, the context is
// cancelled, or the caller closes the body.
func (c *Client) OpenEventStream(ctx context.Context) (io.ReadCloser, error) {
	header := http.Header{}
	header.Set("Accept", "text/event-stream")

	url := fmt.Sprintf("https://%s/eventstream/clip/v2", c.address)
	resp, err := c.do(ctx, c.streamClient, http.MethodGet, url, "eventstream/clip/v2", nil, header)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FetchLights returns all lights
func (c *Client) FetchLights(ctx context.Context) ([]Light, error) {
	return FetchList[Light](ctx, c, "resource/light")
}

// FetchRooms returns all rooms
func (c *Client) FetchRooms(ctx context.Context) ([]Room, error) {
	return FetchList[Room](ctx, c, "resource/room")
}

// FetchRoom returns a room by ID
func (c *Client) FetchRoom(ctx context.Context, id string) (*Room, error) {
	return FetchOne[Room](ctx, c, "resource/room/"+id)
}

// FetchScenes returns all scenes
func (c *Client) FetchScenes(ctx context.Context) ([]Scene, error) {
	return FetchList[Scene](ctx, c, "resource/scene")
}

// FetchGroupedLight returns a grouped light by ID
func (c *Client) FetchGroupedLight(ctx context.Context, id string) (*GroupedLight, error) {
	return FetchOne[GroupedLight](ctx, c, "resource/grouped_light/"+id)
}

// SetLightOn switches a light on or off
func (c *Client) SetLightOn(ctx context.Context, id string, on bool) error {
	return c.Write(ctx, "resource/light/"+id, onRequest{On: OnState{On: on}})
}

// SetLightBrightness sets a light brightness (1-100)
func (c *Client) SetLightBrightness(ctx context.Context, id string, brightness float64) error {
	var body dimmingRequest
	body.Dimming.Brightness = brightness
	return c.Write(ctx, "resource/light/"+id, body)
}

// SetGroupedLightOn switches every light of a room on or off
func (c *Client) SetGroupedLightOn(ctx context.Context, id string, on bool) error {
	return c.Write(ctx, "resource/grouped_light/"+id, onRequest{On: OnState{On: on}})
}

// SetGroupedLightBrightness sets the room brightness (1-100)
func (c *Client) SetGroupedLightBrightness(ctx context.Context, id string, brightness float64) error {
	var body dimmingRequest
	body.Dimming.Brightness = brightness
	return c.Write(ctx, "resource/grouped_light/"+id, body)
}

// ActivateScene recalls a scene
func (c *Client) ActivateScene(ctx context.Context, id string) error {
	var body recallRequest
	body.Recall.Action = SceneActive
	return c.Write(ctx, "resource/scene/"+id, body)
}
