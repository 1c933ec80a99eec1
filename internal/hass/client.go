package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/huebridged/huebridged/internal/errors"
)

// Client is a Home Assistant websocket API client. One connection serves all
// request/response traffic plus a state_changed subscription that keeps the
// entity snapshot cache warm.
type Client struct {
	logger *slog.Logger
	url    string
	token  string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan response

	stateMu sync.RWMutex
	states  map[string]EntityState

	regMu        sync.Mutex
	entityDevice map[string]string
	devices      map[string]DeviceAttributes
	regLoaded    bool

	done      chan struct{}
	closeOnce sync.Once
}

type response struct {
	result json.RawMessage
	err    error
}

// serverMessage is the envelope of every message Home Assistant sends.
type serverMessage struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Success *bool           `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error"`
	Event   *eventPayload   `json:"event"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventPayload struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string       `json:"entity_id"`
		NewState *EntityState `json:"new_state"`
	} `json:"data"`
}

// NewClient creates a client for the websocket API at url. Connect must be
// called before any other method.
func NewClient(logger *slog.Logger, url, token string) *Client {
	return &Client{
		logger:       logger,
		url:          url,
		token:        token,
		pending:      make(map[int64]chan response),
		states:       make(map[string]EntityState),
		entityDevice: make(map[string]string),
		devices:      make(map[string]DeviceAttributes),
		done:         make(chan struct{}),
	}
}

// Connect dials the websocket, completes the auth handshake, subscribes to
// state_changed events and primes the entity snapshot cache.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.BackendUnavailablef("dial %s: %v", c.url, err)
	}
	c.conn = conn

	if err := c.authenticate(); err != nil {
		conn.Close()
		return err
	}
	c.logger.Info("hass: connected", "url", c.url)

	go c.readLoop()

	if _, err := c.call(ctx, map[string]any{
		"type":       "subscribe_events",
		"event_type": "state_changed",
	}); err != nil {
		c.Close()
		return errors.WrapErrorf(err, "subscribe to state_changed")
	}
	if err := c.refreshStates(ctx); err != nil {
		c.Close()
		return err
	}
	return nil
}

// authenticate runs the auth_required / auth / auth_ok exchange that precedes
// all other traffic on a new connection.
func (c *Client) authenticate() error {
	var hello serverMessage
	if err := c.conn.ReadJSON(&hello); err != nil {
		return errors.BackendUnavailablef("read auth_required: %v", err)
	}
	if hello.Type != "auth_required" {
		return errors.BackendUnavailablef("unexpected handshake message %q", hello.Type)
	}
	if err := c.conn.WriteJSON(map[string]string{
		"type":         "auth",
		"access_token": c.token,
	}); err != nil {
		return errors.BackendUnavailablef("send auth: %v", err)
	}
	var verdict serverMessage
	if err := c.conn.ReadJSON(&verdict); err != nil {
		return errors.BackendUnavailablef("read auth result: %v", err)
	}
	if verdict.Type != "auth_ok" {
		return errors.BackendUnavailablef("authentication rejected: %s", verdict.Type)
	}
	return nil
}

// Close tears down the connection and fails any in-flight calls. Safe to
// call concurrently with a connection loss observed by readLoop.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	err := c.conn.Close()
	c.failPending(errors.BackendUnavailablef("connection closed"))
	return err
}

// Done is closed when the connection is lost or Close is called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// call sends one command and waits for its result. Message ids are allocated
// monotonically; the response is matched back by id in readLoop.
func (c *Client) call(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	msg["id"] = id

	c.writeMu.Lock()
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, errors.BackendUnavailablef("send %v: %v", msg["type"], err)
	}

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, errors.BackendUnavailablef("connection closed")
	}
}

func (c *Client) readLoop() {
	for {
		var msg serverMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Error("hass: connection lost", "error", err)
			}
			c.closeOnce.Do(func() { close(c.done) })
			c.conn.Close()
			c.failPending(errors.BackendUnavailablef("connection lost"))
			return
		}

		switch msg.Type {
		case "result":
			c.deliver(msg)
		case "event":
			c.handleEvent(msg.Event)
		case "pong":
		default:
			c.logger.Debug("hass: ignoring message", "type", msg.Type)
		}
	}
}

func (c *Client) deliver(msg serverMessage) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("hass: result for unknown message id", "id", msg.ID)
		return
	}

	if msg.Success != nil && !*msg.Success {
		code, text := "unknown", "unknown error"
		if msg.Error != nil {
			code, text = msg.Error.Code, msg.Error.Message
		}
		ch <- response{err: fmt.Errorf("home assistant error %s: %s", code, text)}
		return
	}
	ch <- response{result: msg.Result}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- response{err: err}
		delete(c.pending, id)
	}
}

func (c *Client) handleEvent(ev *eventPayload) {
	if ev == nil || ev.EventType != "state_changed" {
		return
	}
	c.stateMu.Lock()
	if ev.Data.NewState == nil {
		delete(c.states, ev.Data.EntityID)
	} else {
		c.states[ev.Data.EntityID] = *ev.Data.NewState
	}
	c.stateMu.Unlock()
}

// refreshStates replaces the snapshot cache with a full get_states dump.
func (c *Client) refreshStates(ctx context.Context) error {
	raw, err := c.call(ctx, map[string]any{"type": "get_states"})
	if err != nil {
		return errors.WrapErrorf(err, "get_states")
	}
	var states []EntityState
	if err := json.Unmarshal(raw, &states); err != nil {
		return errors.WrapErrorf(err, "parse get_states")
	}

	c.stateMu.Lock()
	c.states = make(map[string]EntityState, len(states))
	for _, st := range states {
		c.states[st.EntityID] = st
	}
	c.stateMu.Unlock()
	return nil
}

// EntityState returns the cached snapshot for an entity, falling back to a
// full state refresh when the entity is not cached yet.
func (c *Client) EntityState(ctx context.Context, entityID string) (*EntityState, error) {
	c.stateMu.RLock()
	st, ok := c.states[entityID]
	c.stateMu.RUnlock()
	if ok {
		return &st, nil
	}

	if err := c.refreshStates(ctx); err != nil {
		return nil, err
	}
	c.stateMu.RLock()
	st, ok = c.states[entityID]
	c.stateMu.RUnlock()
	if !ok {
		return nil, errors.NotFoundf("entity %s", entityID)
	}
	return &st, nil
}

// loadRegistries fetches the entity and device registries once and indexes
// them for lookup. Registry contents are treated as static for the process
// lifetime.
func (c *Client) loadRegistries(ctx context.Context) error {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	if c.regLoaded {
		return nil
	}

	raw, err := c.call(ctx, map[string]any{"type": "config/entity_registry/list"})
	if err != nil {
		return errors.WrapErrorf(err, "entity registry list")
	}
	var entities []registryEntity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return errors.WrapErrorf(err, "parse entity registry")
	}
	for _, e := range entities {
		if e.DeviceID != "" {
			c.entityDevice[e.EntityID] = e.DeviceID
		}
	}

	raw, err = c.call(ctx, map[string]any{"type": "config/device_registry/list"})
	if err != nil {
		return errors.WrapErrorf(err, "device registry list")
	}
	var devices []DeviceAttributes
	if err := json.Unmarshal(raw, &devices); err != nil {
		return errors.WrapErrorf(err, "parse device registry")
	}
	for _, d := range devices {
		c.devices[d.ID] = d
	}

	c.regLoaded = true
	c.logger.Debug("hass: registries loaded", "entities", len(c.entityDevice), "devices", len(c.devices))
	return nil
}

// DeviceIDForEntity resolves the device owning an entity. Entities without a
// registry entry return an empty id and no error.
func (c *Client) DeviceIDForEntity(ctx context.Context, entityID string) (string, error) {
	if err := c.loadRegistries(ctx); err != nil {
		return "", err
	}
	c.regMu.Lock()
	defer c.regMu.Unlock()
	return c.entityDevice[entityID], nil
}

// DeviceAttributes returns registry metadata for a device id.
func (c *Client) DeviceAttributes(ctx context.Context, deviceID string) (DeviceAttributes, error) {
	if err := c.loadRegistries(ctx); err != nil {
		return DeviceAttributes{}, err
	}
	c.regMu.Lock()
	defer c.regMu.Unlock()
	d, ok := c.devices[deviceID]
	if !ok {
		return DeviceAttributes{}, errors.NotFoundf("device %s", deviceID)
	}
	return d, nil
}

// TurnOn dispatches homeassistant.turn_on for an entity with a service
// payload built by the light layer.
func (c *Client) TurnOn(ctx context.Context, entityID string, data map[string]any) error {
	return c.callService(ctx, "turn_on", entityID, data)
}

// TurnOff dispatches homeassistant.turn_off for an entity.
func (c *Client) TurnOff(ctx context.Context, entityID string, data map[string]any) error {
	return c.callService(ctx, "turn_off", entityID, data)
}

func (c *Client) callService(ctx context.Context, service, entityID string, data map[string]any) error {
	payload := map[string]any{"entity_id": entityID}
	for k, v := range data {
		payload[k] = v
	}
	_, err := c.call(ctx, map[string]any{
		"type":         "call_service",
		"domain":       "homeassistant",
		"service":      service,
		"service_data": payload,
	})
	if err != nil {
		return errors.BackendUnavailablef("%s %s: %v", service, entityID, err)
	}
	return nil
}
