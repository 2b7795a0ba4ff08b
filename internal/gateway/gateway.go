// Gateway owns the connections of this instance: handshake, room membership, inbound dispatch
// and the broadcast API used by domain code and the relay subscriber.

package gateway

import (
	"Stockpile/internal/auth"
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/log"
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Publisher puts a message on the cross-instance bus. Publish must not block.
type Publisher interface {
	Publish(msg entity.RelayMessage) error
	Connected() bool
}

// Handler is a domain event handler, selected by inbound event name.
type Handler interface {
	// Events lists the inbound events the handler accepts.
	Events() []entity.EventName
	// Handle processes one message of c. A returned error is reported to c only.
	Handle(ctx context.Context, c *Connection, msg entity.InboundMessage) error
}

// Options of a Gateway.
type Options struct {
	InstanceID     string
	PingInterval   time.Duration
	MaxMissedPings int
	SendBuffer     int
	MaxMessageSize int64
	// Allowed Origin header of handshakes, "*" allows every origin.
	AllowedOrigin string
}

// Stats of the gateway at one point in time.
type Stats struct {
	InstanceID     string `json:"instanceId"`
	Connections    int    `json:"connections"`
	Principals     int    `json:"principals"`
	Rooms          int    `json:"rooms"`
	RelayConnected bool   `json:"relayConnected"`
}

type Gateway struct {
	opts      Options
	validator auth.Validator
	publisher Publisher
	logger    log.Logger

	registry *registry
	rooms    *router
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	handlers map[entity.EventName]Handler

	closed atomic.Bool
	now    func() time.Time
}

// New returns a Gateway. publisher may be nil, which keeps every broadcast local.
func New(opts Options, validator auth.Validator, publisher Publisher, logger log.Logger) *Gateway {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.MaxMissedPings < 1 {
		opts.MaxMissedPings = 1
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	g := &Gateway{
		opts:      opts,
		validator: validator,
		publisher: publisher,
		logger:    logger.With("instance", opts.InstanceID),
		registry:  newRegistry(),
		rooms:     newRouter(),
		handlers:  make(map[entity.EventName]Handler),
		now:       time.Now,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// SetPublisher attaches the relay once it exists.
func (g *Gateway) SetPublisher(p Publisher) {
	g.mu.Lock()
	g.publisher = p
	g.mu.Unlock()
}

// Mount adds domain handlers to the dispatch table. Each inbound event has exactly one handler.
func (g *Gateway) Mount(handlers ...Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, h := range handlers {
		for _, name := range h.Events() {
			if !entity.IsInbound(name) {
				panic(fmt.Sprintf("gateway: %q is not an inbound event", name))
			}
			if _, dup := g.handlers[name]; dup {
				panic(fmt.Sprintf("gateway: handler for %q mounted twice", name))
			}
			g.handlers[name] = h
		}
	}
}

// Authenticate runs the Session Validator for a handshake.
func (g *Gateway) Authenticate(ctx context.Context, credential string) (entity.Principal, error) {
	if g.closed.Load() {
		return entity.Principal{}, errors.ErrUnauthenticated
	}
	return g.validator.Validate(ctx, credential)
}

// Connect registers c and joins its automatic rooms.
// The first live connection of a principal announces it online to its organization.
func (g *Gateway) Connect(c *Connection) error {
	if g.closed.Load() {
		return errors.ErrUnauthenticated
	}
	for _, room := range c.principal.Rooms() {
		g.rooms.join(c, room)
	}
	g.registry.add(c, func() {
		g.announce(c, entity.EventUserOnline, entity.PresenceOnline)
	})
	c.logger.Info().Msg("Realtime connection registered")
	if g.closed.Load() {
		g.Disconnect(c)
		return errors.ErrUnauthenticated
	}
	return nil
}

// Disconnect releases c. It is idempotent and safe for connections that were never registered.
// The last live connection of a principal announces it offline.
func (g *Gateway) Disconnect(c *Connection) {
	if c == nil {
		return
	}
	code := websocket.CloseNormalClosure
	if g.closed.Load() {
		code = websocket.CloseGoingAway
	}
	c.close(code)
	g.rooms.leaveAll(c)
	if g.registry.remove(c, func() {
		g.announce(c, entity.EventUserOffline, entity.PresenceOffline)
	}) {
		c.logger.Info().Msg("Realtime connection released")
	}
}

func (g *Gateway) announce(c *Connection, name entity.EventName, status entity.PresenceStatus) {
	target := entity.ToRoom(entity.OrgRoom(c.principal.OrganizationID)).Excluding(c.id)
	g.Publish(entity.TopicUsers, target, name, entity.PresencePayload{UserID: c.principal.UserID, Status: status})
}

// Dispatch decodes one inbound frame of c and hands it to its handler.
// Failures are reported to c only and never close the connection.
func (g *Gateway) Dispatch(c *Connection, raw []byte) {
	msg, err := entity.DecodeInbound(raw)
	if err != nil {
		g.replyError(c, err, msg.Name)
		return
	}
	g.mu.RLock()
	h, ok := g.handlers[msg.Name]
	g.mu.RUnlock()
	if !ok {
		g.replyError(c, errors.Malformed("no handler mounted"), msg.Name)
		return
	}
	if err := h.Handle(c.ctx, c, msg); err != nil {
		g.replyError(c, err, msg.Name)
	}
}

func (g *Gateway) replyError(c *Connection, err error, name entity.EventName) {
	reason := errors.Reason(err)
	evt := c.logger.Warn()
	if reason == errors.ErrDeliveryFailure.Reason() {
		evt = c.logger.Error()
	}
	evt.Err(err).Str("event", string(name)).Str("reason", reason).Msg("Inbound message rejected")
	g.Reply(c, entity.EventError, entity.ErrorPayload{Reason: reason, Event: name})
}

// Reply sends an event to c only.
func (g *Gateway) Reply(c *Connection, name entity.EventName, payload interface{}) {
	evt, err := entity.NewEvent(name, payload, g.now())
	if err != nil {
		g.deliveryFailed(err, name, "conn:"+c.id)
		return
	}
	frame, err := evt.Frame()
	if err != nil {
		g.deliveryFailed(err, name, "conn:"+c.id)
		return
	}
	if err := c.Send(frame); err != nil {
		g.deliveryFailed(err, name, "conn:"+c.id)
	}
}

// JoinRoom adds c to an ad hoc room. Closed connections join nothing.
func (g *Gateway) JoinRoom(c *Connection, room string) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	return g.rooms.join(c, room)
}

// LeaveRoom removes c from room.
func (g *Gateway) LeaveRoom(c *Connection, room string) bool {
	return g.rooms.leave(c, room)
}

// RoomsOf returns the rooms c currently belongs to.
func (g *Gateway) RoomsOf(c *Connection) []string {
	return g.rooms.roomsOf(c.id)
}

// SendToRoom delivers to every local connection in room. An empty room is a no-op.
func (g *Gateway) SendToRoom(room string, name entity.EventName, payload interface{}) {
	g.send(entity.ToRoom(room), name, payload)
}

// SendToUser delivers to the personal room of userID.
func (g *Gateway) SendToUser(userID string, name entity.EventName, payload interface{}) {
	g.send(entity.ToUser(userID), name, payload)
}

// SendToEveryone delivers to every local connection.
func (g *Gateway) SendToEveryone(name entity.EventName, payload interface{}) {
	g.send(entity.ToEveryone(), name, payload)
}

func (g *Gateway) send(target entity.Target, name entity.EventName, payload interface{}) {
	evt, err := entity.NewEvent(name, payload, g.now())
	if err != nil {
		g.deliveryFailed(err, name, describe(target))
		return
	}
	g.deliver(target, evt)
}

// Publish broadcasts locally and puts the same event on the relay for sibling instances.
// It never fails: errors are logged as delivery failures.
func (g *Gateway) Publish(topic entity.RelayTopic, target entity.Target, name entity.EventName, payload interface{}) {
	evt, err := entity.NewEvent(name, payload, g.now())
	if err != nil {
		g.deliveryFailed(err, name, describe(target))
		return
	}
	g.deliver(target, evt)

	g.mu.RLock()
	publisher := g.publisher
	g.mu.RUnlock()
	if publisher == nil {
		return
	}
	msg := entity.RelayMessage{Origin: g.opts.InstanceID, Topic: topic, Target: target, Event: evt}
	if err := publisher.Publish(msg); err != nil {
		g.logger.Warn().Err(err).Str("topic", string(topic)).Str("event", string(name)).
			Str("reason", errors.Reason(err)).Msg("Relay publish dropped")
	}
}

// Deliver is the relay subscriber callback. It only delivers locally and never re-publishes.
func (g *Gateway) Deliver(msg entity.RelayMessage) {
	if !msg.Target.Valid() {
		g.logger.Warn().Str("topic", string(msg.Topic)).Str("event", string(msg.Event.Name)).
			Msg("Relay message without a valid target dropped")
		return
	}
	g.deliver(msg.Target, msg.Event)
}

func (g *Gateway) deliver(target entity.Target, evt entity.Event) {
	var conns []*Connection
	switch target.Kind {
	case entity.TargetRoom:
		conns = g.rooms.snapshot(target.Room)
	case entity.TargetUser:
		conns = g.rooms.snapshot(entity.UserRoom(target.UserID))
	case entity.TargetGlobal:
		conns = g.registry.all()
	default:
		g.deliveryFailed(fmt.Errorf("unknown target kind %q", target.Kind), evt.Name, describe(target))
		return
	}
	if len(conns) == 0 {
		return
	}
	frame, err := evt.Frame()
	if err != nil {
		g.deliveryFailed(err, evt.Name, describe(target))
		return
	}
	for _, c := range conns {
		if c.id == target.Except {
			continue
		}
		if err := c.Send(frame); err != nil {
			c.logger.Warn().Err(err).Str("event", string(evt.Name)).Str("room", describe(target)).
				Msg("Dropped event for connection")
		}
	}
}

func (g *Gateway) deliveryFailed(err error, name entity.EventName, where string) {
	g.logger.Error().Err(errors.Cause{Kind: errors.ErrDeliveryFailure, Detail: err.Error()}).
		Str("event", string(name)).Str("room", where).Msg("Realtime delivery failed")
}

func describe(t entity.Target) string {
	switch t.Kind {
	case entity.TargetRoom:
		return t.Room
	case entity.TargetUser:
		return entity.UserRoom(t.UserID)
	}
	return string(t.Kind)
}

// Stats returns counters of this instance.
func (g *Gateway) Stats() Stats {
	conns, principals := g.registry.totals()
	g.mu.RLock()
	publisher := g.publisher
	g.mu.RUnlock()
	return Stats{
		InstanceID:     g.opts.InstanceID,
		Connections:    conns,
		Principals:     principals,
		Rooms:          g.rooms.count(),
		RelayConnected: publisher != nil && publisher.Connected(),
	}
}

// Online reports whether userID has a live connection on this instance.
func (g *Gateway) Online(userID string) bool {
	return g.registry.count(userID) > 0
}

// Shutdown refuses new handshakes and closes every connection with a going-away frame.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.closed.Store(true)
	conns := g.registry.all()
	for _, c := range conns {
		g.Disconnect(c)
	}
	g.logger.WithCtx(ctx).Info().Msgf("Closed %d realtime connections", len(conns))
	return nil
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.opts.AllowedOrigin == "" || g.opts.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == g.opts.AllowedOrigin
}
