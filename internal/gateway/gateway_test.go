// Gateway tests in Stockpile.

package gateway

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/internal/test"
	"Stockpile/pkg/log"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Global instance of log.Logger to be used during gateway testing.
var logger log.Logger

func TestMain(m *testing.M) {
	logger = log.NewWithWriter("test", io.Discard)
	os.Exit(m.Run())
}

type stubValidator map[string]entity.Principal

func (v stubValidator) Validate(ctx context.Context, credential string) (entity.Principal, error) {
	p, ok := v[credential]
	if !ok {
		return entity.Principal{}, errors.ErrUnauthenticated
	}
	return p, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []entity.RelayMessage
}

func (p *recordingPublisher) Publish(msg entity.RelayMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Connected() bool { return true }

func (p *recordingPublisher) published() []entity.RelayMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.RelayMessage(nil), p.msgs...)
}

// orgEcho broadcasts filter-update to the sender's organization and replies to the sender.
type orgEcho struct {
	gw *Gateway
}

func (orgEcho) Events() []entity.EventName {
	return []entity.EventName{entity.InFilterUpdate}
}

func (h orgEcho) Handle(ctx context.Context, c *Connection, msg entity.InboundMessage) error {
	p := msg.Payload.(*entity.FilterUpdate)
	h.gw.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(c.Principal().OrganizationID)).Excluding(c.ID()),
		entity.EventFilterUpdated, p.Filters)
	h.gw.Reply(c, entity.EventFilterUpdated, p.Filters)
	return nil
}

var (
	manager1 = entity.Principal{UserID: "u1", OrganizationID: "o1", Role: entity.RoleManager}
	manager2 = entity.Principal{UserID: "u2", OrganizationID: "o1", Role: entity.RoleManager}
	member1  = entity.Principal{UserID: "u4", OrganizationID: "o1", Role: entity.RoleUser}
	admin1   = entity.Principal{UserID: "u5", OrganizationID: "o1", Role: entity.RoleAdmin}
	outsider = entity.Principal{UserID: "u3", OrganizationID: "o2", Role: entity.RoleManager}
)

func newTestGateway(pub Publisher) *Gateway {
	gw := New(Options{InstanceID: "test", PingInterval: time.Second, MaxMissedPings: 2, SendBuffer: 64},
		stubValidator{"good": manager1}, pub, logger)
	gw.Mount(orgEcho{gw: gw})
	return gw
}

// connect registers a connection without a physical socket.
func connect(t *testing.T, gw *Gateway, p entity.Principal) *Connection {
	t.Helper()
	c := NewConnection(p, nil, gw.opts.SendBuffer, gw.logger)
	require.NoError(t, gw.Connect(c))
	return c
}

// drain returns every event queued for c.
func drain(t *testing.T, c *Connection) []entity.Event {
	t.Helper()
	var out []entity.Event
	for {
		select {
		case frame := <-c.send:
			var evt entity.Event
			require.NoError(t, json.Unmarshal(frame, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func named(events []entity.Event, name entity.EventName) []entity.Event {
	var out []entity.Event
	for _, e := range events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func TestConnectJoinsRoleRooms(t *testing.T) {
	gw := newTestGateway(nil)

	cases := []struct {
		principal entity.Principal
		want      []string
	}{
		{member1, []string{"org:o1", "user:u4"}},
		{manager1, []string{"org:o1", "org:o1:managers", "user:u1"}},
		{admin1, []string{"org:o1", "org:o1:admins", "org:o1:managers", "user:u5"}},
		{entity.Principal{UserID: "u6", OrganizationID: "o1", Role: entity.RoleSystemAdmin},
			[]string{"org:o1", "org:o1:admins", "org:o1:managers", "user:u6"}},
	}
	for _, tc := range cases {
		c := connect(t, gw, tc.principal)
		assert.Equal(t, tc.want, gw.RoomsOf(c), string(tc.principal.Role))
	}
}

func TestOnlineOncePerPrincipal(t *testing.T) {
	pub := &recordingPublisher{}
	gw := newTestGateway(pub)
	observer := connect(t, gw, manager2)

	var wg sync.WaitGroup
	conns := make([]*Connection, 3)
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i] = NewConnection(manager1, nil, 64, logger)
			assert.NoError(t, gw.Connect(conns[i]))
		}(i)
	}
	wg.Wait()

	online := named(drain(t, observer), entity.EventUserOnline)
	require.Len(t, online, 1)
	var presence entity.PresencePayload
	require.NoError(t, json.Unmarshal(online[0].Payload, &presence))
	assert.Equal(t, entity.PresencePayload{UserID: "u1", Status: entity.PresenceOnline}, presence)

	gw.Disconnect(conns[0])
	gw.Disconnect(conns[1])
	assert.Empty(t, named(drain(t, observer), entity.EventUserOffline))
	assert.True(t, gw.Online("u1"))

	gw.Disconnect(conns[2])
	assert.Len(t, named(drain(t, observer), entity.EventUserOffline), 1)
	assert.False(t, gw.Online("u1"))

	// Presence goes to sibling instances too: online of u2, online and offline of u1.
	var presenceMsgs int
	for _, msg := range pub.published() {
		assert.Equal(t, "test", msg.Origin)
		if msg.Topic == entity.TopicUsers {
			presenceMsgs++
		}
	}
	assert.Equal(t, 3, presenceMsgs)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	gw := newTestGateway(nil)
	observer := connect(t, gw, manager2)
	c := connect(t, gw, manager1)
	drain(t, observer)

	gw.Disconnect(c)
	gw.Disconnect(c)
	gw.Disconnect(nil)
	gw.Disconnect(NewConnection(member1, nil, 1, logger))

	assert.Len(t, named(drain(t, observer), entity.EventUserOffline), 1)
	stats := gw.Stats()
	assert.Equal(t, 1, stats.Connections)
	assert.Empty(t, gw.RoomsOf(c))
}

func TestRoomBroadcastStaysInOrganization(t *testing.T) {
	gw := newTestGateway(nil)
	sender := connect(t, gw, manager1)
	peer := connect(t, gw, member1)
	stranger := connect(t, gw, outsider)
	drain(t, sender)
	drain(t, peer)
	drain(t, stranger)

	gw.Dispatch(sender, []byte(`{"event":"filter-update","data":{"category":"tools"}}`))

	got := drain(t, peer)
	require.Len(t, got, 1)
	assert.Equal(t, entity.EventFilterUpdated, got[0].Name)
	assert.JSONEq(t, `{"category":"tools"}`, string(got[0].Payload))
	assert.Empty(t, drain(t, stranger))

	// The sender only sees its own reply, not the broadcast.
	assert.Len(t, drain(t, sender), 1)
}

func TestManagerRoomContainment(t *testing.T) {
	gw := newTestGateway(nil)
	manager := connect(t, gw, manager2)
	admin := connect(t, gw, admin1)
	member := connect(t, gw, member1)
	other := connect(t, gw, outsider)
	for _, c := range []*Connection{manager, admin, member, other} {
		drain(t, c)
	}

	gw.SendToRoom(entity.ManagerRoom("o1"), entity.EventLocationUpdated, map[string]string{"area": "dock"})

	assert.Len(t, drain(t, manager), 1)
	assert.Len(t, drain(t, admin), 1)
	assert.Empty(t, drain(t, member))
	assert.Empty(t, drain(t, other))
}

func TestSendToUserAndEveryone(t *testing.T) {
	gw := newTestGateway(nil)
	tab1 := connect(t, gw, manager1)
	tab2 := connect(t, gw, manager1)
	other := connect(t, gw, outsider)
	drain(t, tab1)
	drain(t, other)

	gw.SendToUser("u1", entity.EventNotificationNew, entity.Notification{ID: "n1", Title: "hi"})
	assert.Len(t, drain(t, tab1), 1)
	assert.Len(t, drain(t, tab2), 1)
	assert.Empty(t, drain(t, other))

	gw.SendToEveryone(entity.EventSystemAlert, entity.SystemAlert{Level: entity.AlertWarning, Message: "maintenance"})
	for _, c := range []*Connection{tab1, tab2, other} {
		got := drain(t, c)
		require.Len(t, got, 1)
		assert.Equal(t, entity.EventSystemAlert, got[0].Name)
	}

	// Empty room is a no-op.
	gw.SendToRoom("org:nobody", entity.EventItemCreated, nil)
}

func TestDispatchRejectsMalformedMessages(t *testing.T) {
	gw := newTestGateway(nil)
	c := connect(t, gw, manager1)

	for _, raw := range []string{
		`not json`,
		`{"event":"drop-table","data":{}}`,
		`{"event":"filter-update","data":"text"}`,
		`{"event":"typing-start","data":{"resource":"item"}}`,
	} {
		gw.Dispatch(c, []byte(raw))
		got := drain(t, c)
		require.Len(t, got, 1, raw)
		assert.Equal(t, entity.EventError, got[0].Name)
		var payload entity.ErrorPayload
		require.NoError(t, json.Unmarshal(got[0].Payload, &payload))
		assert.Equal(t, "malformed_message", payload.Reason, raw)
	}
	assert.True(t, gw.Online("u1"))
}

func TestDeliverFromRelay(t *testing.T) {
	gw := newTestGateway(nil)
	c := connect(t, gw, manager1)
	skipped := connect(t, gw, manager2)
	drain(t, c)
	drain(t, skipped)

	evt, err := entity.NewEvent(entity.EventItemEditing, map[string]string{"itemId": "i1"}, time.Now())
	require.NoError(t, err)
	gw.Deliver(entity.RelayMessage{
		Origin: "sibling",
		Topic:  entity.TopicInventory,
		Target: entity.ToRoom(entity.OrgRoom("o1")).Excluding(skipped.ID()),
		Event:  evt,
	})
	got := drain(t, c)
	require.Len(t, got, 1)
	assert.JSONEq(t, string(evt.Payload), string(got[0].Payload))
	assert.Empty(t, drain(t, skipped))

	gw.Deliver(entity.RelayMessage{Origin: "sibling", Target: entity.Target{Kind: entity.TargetRoom}, Event: evt})
	assert.Empty(t, drain(t, c))
}

func TestFullQueueDropsEvents(t *testing.T) {
	gw := New(Options{InstanceID: "test", SendBuffer: 1}, stubValidator{}, nil, logger)
	c := NewConnection(member1, nil, 1, logger)
	require.NoError(t, gw.Connect(c))

	gw.SendToUser("u4", entity.EventNotificationNew, nil)
	gw.SendToUser("u4", entity.EventNotificationNew, nil)
	assert.Len(t, drain(t, c), 1)

	err := c.Send([]byte("{}"))
	assert.NoError(t, err)
	err = c.Send([]byte("{}"))
	assert.True(t, errors.Is(err, errors.ErrDeliveryFailure))
}

func TestShutdownClosesEverything(t *testing.T) {
	gw := newTestGateway(nil)
	c1 := connect(t, gw, manager1)
	c2 := connect(t, gw, outsider)

	require.NoError(t, gw.Shutdown(context.Background()))
	for _, c := range []*Connection{c1, c2} {
		select {
		case <-c.Done():
		default:
			t.Fatal("connection still open after shutdown")
		}
	}
	assert.Equal(t, 0, gw.Stats().Connections)
	assert.Equal(t, 0, gw.Stats().Rooms)

	_, err := gw.Authenticate(context.Background(), "good")
	assert.Same(t, errors.ErrUnauthenticated, err)
}

func TestWebsocketHandshake(t *testing.T) {
	gw := newTestGateway(nil)
	router := test.MockRouter()
	APIHandlers(router, gw, test.MockAuthMiddleware(), logger)
	srv := httptest.NewServer(router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime/ws"

	// Bad credential: refused before upgrade, nothing registered.
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, gw.Stats().Connections)

	header := http.Header{}
	header.Set("Authorization", "Bearer good")
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return gw.Online("u1") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"filter-update","data":{"q":"bolts"}}`)))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	var evt entity.Event
	require.NoError(t, json.Unmarshal(frame, &evt))
	assert.Equal(t, entity.EventFilterUpdated, evt.Name)
	assert.JSONEq(t, `{"q":"bolts"}`, string(evt.Payload))
	assert.False(t, evt.Timestamp.IsZero())

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return gw.Stats().Connections == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStatusEndpoint(t *testing.T) {
	gw := newTestGateway(nil)
	connect(t, gw, manager1)
	router := test.MockRouter()
	APIHandlers(router, gw, test.MockAuthMiddleware(), logger)

	w := test.ExecuteAPITest(logger, t, router, test.RequestAPITest{
		Method:       http.MethodGet,
		Path:         "/api/realtime/status",
		WantResponse: []int{http.StatusOK},
		Cookies:      test.MockPrincipalCookies(manager1),
	})
	var body struct {
		Status Stats `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Status.Connections)
	assert.Equal(t, "test", body.Status.InstanceID)
}

func TestMissedKeepalivesDisconnect(t *testing.T) {
	gw := New(Options{InstanceID: "test", PingInterval: 100 * time.Millisecond, MaxMissedPings: 1, SendBuffer: 64},
		stubValidator{"good": manager1}, nil, logger)
	observer := connect(t, gw, manager2)
	router := test.MockRouter()
	APIHandlers(router, gw, test.MockAuthMiddleware(), logger)
	srv := httptest.NewServer(router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime/ws?token=good"

	// The client never reads, so pings go unanswered.
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Eventually(t, func() bool { return gw.Online("u1") }, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return !gw.Online("u1") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, gw.Stats().Connections)
	events := drain(t, observer)
	assert.Len(t, named(events, entity.EventUserOnline), 1)
	offline := named(events, entity.EventUserOffline)
	require.Len(t, offline, 1)
	assert.JSONEq(t, `{"userId":"u1","status":"offline"}`, string(offline[0].Payload))
}
