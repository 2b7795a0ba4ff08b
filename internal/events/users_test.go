package events

import (
	"Stockpile/internal/entity"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationUpdateReachesManagersOnly(t *testing.T) {
	e := newEnv()
	conns := e.connect(t, u1, u2, u3, u4, u5)
	manager1, manager2, outsider, member, admin := conns[0], conns[1], conns[2], conns[3], conns[4]

	e.send(member, `{"event":"location-update","data":{"area":"dock-3"}}`)
	assert.Equal(t, []entity.EventName{entity.EventLocationUpdated}, names(drain(t, manager1)))
	assert.Equal(t, []entity.EventName{entity.EventLocationUpdated}, names(drain(t, manager2)))
	assert.Equal(t, []entity.EventName{entity.EventLocationUpdated}, names(drain(t, admin)))
	assert.Empty(t, drain(t, member))
	assert.Empty(t, drain(t, outsider))

	// The sending manager is excluded from its own update.
	e.send(manager1, `{"event":"location-update","data":{"area":"aisle-9"}}`)
	got := drain(t, manager2)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"userId":"u1","area":"aisle-9"}`, string(got[0].Payload))
	assert.Empty(t, drain(t, manager1))
	assert.Empty(t, drain(t, member))
}

func TestActivityGoesToAdminsAndIsRecorded(t *testing.T) {
	e := newEnv()
	conns := e.connect(t, u4, u2, u5)
	member, manager, admin := conns[0], conns[1], conns[2]

	e.send(member, `{"event":"activity","data":{"action":"viewed","resource":"item","details":{"id":"I"}}}`)

	got := drain(t, admin)
	require.Len(t, got, 1)
	assert.Equal(t, entity.EventActivity, got[0].Name)
	var entry entity.ActivityEntry
	require.NoError(t, json.Unmarshal(got[0].Payload, &entry))
	assert.Equal(t, "u4", entry.UserID)
	assert.Equal(t, "viewed", entry.Action)
	assert.Empty(t, drain(t, manager))

	recorded, err := repo.RecentActivity(ctx, logger, "o1", 10)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, entry.ID, recorded[0].ID)
}

func TestActivityListIsBounded(t *testing.T) {
	newEnv()
	for i := 0; i < 8; i++ {
		require.NoError(t, repo.AppendActivity(ctx, logger, "o9", entity.ActivityEntry{ID: string(rune('a' + i))}))
	}
	recorded, err := repo.RecentActivity(ctx, logger, "o9", 0)
	require.NoError(t, err)
	require.Len(t, recorded, 5)
	assert.Equal(t, "h", recorded[0].ID)
	assert.Equal(t, "d", recorded[4].ID)
}

func TestPresenceAndTyping(t *testing.T) {
	e := newEnv()
	conns := e.connect(t, u1, u4, u3)
	sender, peer, outsider := conns[0], conns[1], conns[2]

	e.send(sender, `{"event":"presence-update","data":"away"}`)
	got := drain(t, peer)
	require.Len(t, got, 1)
	assert.Equal(t, entity.EventPresenceUpdated, got[0].Name)
	assert.JSONEq(t, `{"userId":"u1","status":"away"}`, string(got[0].Payload))

	e.send(sender, `{"event":"typing-start","data":{"resource":"item","resourceId":"I"}}`)
	e.send(sender, `{"event":"typing-stop","data":{"resource":"item","resourceId":"I"}}`)
	assert.Equal(t, []entity.EventName{entity.EventTypingStarted, entity.EventTypingStopped}, names(drain(t, peer)))

	assert.Empty(t, drain(t, sender))
	assert.Empty(t, drain(t, outsider))
}

func TestPresenceRejectsUnknownStatus(t *testing.T) {
	e := newEnv()
	conns := e.connect(t, u1, u4)

	e.send(conns[0], `{"event":"presence-update","data":"online"}`)
	got := drain(t, conns[0])
	require.Len(t, got, 1)
	assert.Equal(t, entity.EventError, got[0].Name)
	assert.JSONEq(t, `{"reason":"malformed_message","event":"presence-update"}`, string(got[0].Payload))
	assert.Empty(t, drain(t, conns[1]))
}

func TestUserEmitters(t *testing.T) {
	e := newEnv()
	conns := e.connect(t, u1, u1, u4, u3)
	tab1, tab2, member, outsider := conns[0], conns[1], conns[2], conns[3]

	snapshot := entity.UserSnapshot{ID: "u4", OrganizationID: "o1", Role: entity.RoleManager, Active: true}
	e.users.UserCreated(snapshot)
	e.users.UserUpdated(snapshot)
	e.users.UserRoleChanged(snapshot, entity.RoleUser)
	e.users.UserDeactivated(snapshot)
	want := []entity.EventName{
		entity.EventUserCreated,
		entity.EventUserUpdated,
		entity.EventUserRoleChanged,
		entity.EventUserDeactivated,
	}
	assert.Equal(t, want, names(drain(t, member)))
	assert.Equal(t, want, names(drain(t, tab1)))
	assert.Equal(t, want, names(drain(t, tab2)))
	assert.Empty(t, drain(t, outsider))

	e.users.PasswordChanged("u1")
	assert.Equal(t, []entity.EventName{entity.EventPasswordChanged}, names(drain(t, tab1)))
	assert.Equal(t, []entity.EventName{entity.EventPasswordChanged}, names(drain(t, tab2)))
	assert.Empty(t, drain(t, member))
}
