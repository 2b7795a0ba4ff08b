// Users handler: presence, typing, warehouse location and activity, plus the user emitters.

package events

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/gateway"
	"Stockpile/pkg/log"
	"context"
	"time"

	"github.com/rs/xid"
)

type Users struct {
	bc     Broadcaster
	repo   Repository
	logger log.Logger
	now    func() time.Time
}

func NewUsers(bc Broadcaster, repo Repository, logger log.Logger) *Users {
	return &Users{bc: bc, repo: repo, logger: logger, now: time.Now}
}

func (h *Users) Events() []entity.EventName {
	return []entity.EventName{
		entity.InActivity,
		entity.InPresenceUpdate,
		entity.InTypingStart,
		entity.InTypingStop,
		entity.InLocationUpdate,
	}
}

type typingPayload struct {
	UserID     string `json:"userId"`
	Resource   string `json:"resource"`
	ResourceID string `json:"resourceId"`
}

type locationPayload struct {
	UserID  string                 `json:"userId"`
	Area    string                 `json:"area"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type rolePayload struct {
	User         entity.UserSnapshot `json:"user"`
	PreviousRole entity.Role         `json:"previousRole"`
}

func (h *Users) Handle(ctx context.Context, c *gateway.Connection, msg entity.InboundMessage) error {
	p := c.Principal()
	switch payload := msg.Payload.(type) {
	case *entity.Activity:
		entry := entity.ActivityEntry{
			ID:       xid.New().String(),
			UserID:   p.UserID,
			Action:   payload.Action,
			Resource: payload.Resource,
			Details:  payload.Details,
			At:       h.now().UTC(),
		}
		// The list is a side store; admins still get the live event if it is unavailable.
		if err := h.repo.AppendActivity(ctx, c.Logger(), p.OrganizationID, entry); err != nil {
			c.Logger().Warn().Err(err).Str("event", string(msg.Name)).Msg("Activity not recorded")
		}
		h.bc.Publish(entity.TopicUsers, entity.ToRoom(entity.AdminRoom(p.OrganizationID)), entity.EventActivity, entry)
	case *entity.PresenceUpdate:
		h.bc.Publish(entity.TopicUsers, orgOthers(c), entity.EventPresenceUpdated,
			entity.PresencePayload{UserID: p.UserID, Status: payload.Status})
	case *entity.Typing:
		name := entity.EventTypingStarted
		if msg.Name == entity.InTypingStop {
			name = entity.EventTypingStopped
		}
		h.bc.Publish(entity.TopicUsers, orgOthers(c), name,
			typingPayload{UserID: p.UserID, Resource: payload.Resource, ResourceID: payload.ResourceID})
	case *entity.LocationUpdate:
		target := entity.ToRoom(entity.ManagerRoom(p.OrganizationID)).Excluding(c.ID())
		h.bc.Publish(entity.TopicUsers, target, entity.EventLocationUpdated,
			locationPayload{UserID: p.UserID, Area: payload.Area, Details: payload.Details})
	default:
		return unexpected(msg)
	}
	return nil
}

func (h *Users) UserCreated(user entity.UserSnapshot) {
	h.bc.Publish(entity.TopicUsers, entity.ToRoom(entity.OrgRoom(user.OrganizationID)), entity.EventUserCreated, user)
}

func (h *Users) UserUpdated(user entity.UserSnapshot) {
	h.bc.Publish(entity.TopicUsers, entity.ToRoom(entity.OrgRoom(user.OrganizationID)), entity.EventUserUpdated, user)
}

func (h *Users) UserDeactivated(user entity.UserSnapshot) {
	h.bc.Publish(entity.TopicUsers, entity.ToRoom(entity.OrgRoom(user.OrganizationID)), entity.EventUserDeactivated, user)
}

// UserRoleChanged announces a new role. Live connections keep their rooms until they reconnect.
func (h *Users) UserRoleChanged(user entity.UserSnapshot, previous entity.Role) {
	h.bc.Publish(entity.TopicUsers, entity.ToRoom(entity.OrgRoom(user.OrganizationID)), entity.EventUserRoleChanged,
		rolePayload{User: user, PreviousRole: previous})
}

// PasswordChanged only tells the user's own connections.
func (h *Users) PasswordChanged(userID string) {
	h.bc.Publish(entity.TopicUsers, entity.ToUser(userID), entity.EventPasswordChanged,
		map[string]interface{}{"userId": userID, "changedAt": h.now().UTC()})
}
