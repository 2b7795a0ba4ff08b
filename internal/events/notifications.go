// Notifications handler: read-state acknowledgments, ad hoc channel subscriptions, actions, and the notification emitters.

package events

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/internal/gateway"
	"Stockpile/pkg/log"
	"context"
	"strings"
	"time"
)

// privilegedChannels need at least the given role to be joined.
var privilegedChannels = map[string]entity.Role{
	"system": entity.RoleAdmin,
	"audit":  entity.RoleAdmin,
	"stock":  entity.RoleManager,
}

type Notifications struct {
	bc     Broadcaster
	repo   Repository
	logger log.Logger
	now    func() time.Time
}

func NewNotifications(bc Broadcaster, repo Repository, logger log.Logger) *Notifications {
	return &Notifications{bc: bc, repo: repo, logger: logger, now: time.Now}
}

func (h *Notifications) Events() []entity.EventName {
	return []entity.EventName{
		entity.InNotificationRead,
		entity.InNotificationReadAll,
		entity.InNotificationsSubscribe,
		entity.InNotificationAction,
	}
}

type readPayload struct {
	NotificationID string `json:"notificationId"`
}

type readAllPayload struct {
	ReadAt time.Time `json:"readAt"`
}

type subscribedPayload struct {
	Channels []string `json:"channels"`
}

type actionPayload struct {
	UserID         string                 `json:"userId"`
	NotificationID string                 `json:"notificationId"`
	Action         string                 `json:"action"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

func (h *Notifications) Handle(ctx context.Context, c *gateway.Connection, msg entity.InboundMessage) error {
	p := c.Principal()
	switch payload := msg.Payload.(type) {
	case *entity.NotificationRef:
		if err := h.repo.MarkRead(ctx, c.Logger(), p.UserID, payload.NotificationID); err != nil {
			return errors.Cause{Kind: errors.ErrDeliveryFailure, Detail: "read-state unavailable"}
		}
		ack := readPayload{NotificationID: payload.NotificationID}
		h.bc.Reply(c, entity.EventNotificationRead, ack)
		// Other tabs of the same user drop the unread badge too.
		h.bc.Publish(entity.TopicNotifications, entity.ToUser(p.UserID).Excluding(c.ID()), entity.EventNotificationRead, ack)
	case *entity.NotificationReadAll:
		at := h.now().UTC()
		if err := h.repo.MarkAllRead(ctx, c.Logger(), p.UserID, at); err != nil {
			return errors.Cause{Kind: errors.ErrDeliveryFailure, Detail: "read-state unavailable"}
		}
		h.bc.Reply(c, entity.EventAllRead, readAllPayload{ReadAt: at})
		h.bc.Publish(entity.TopicNotifications, entity.ToUser(p.UserID).Excluding(c.ID()), entity.EventAllRead, readAllPayload{ReadAt: at})
	case *entity.NotificationsSubscribe:
		return h.subscribe(c, payload.Channels)
	case *entity.NotificationAction:
		h.bc.Publish(entity.TopicNotifications, entity.ToRoom(entity.AdminRoom(p.OrganizationID)), entity.EventNotificationAct,
			actionPayload{
				UserID:         p.UserID,
				NotificationID: payload.NotificationID,
				Action:         payload.Action,
				Data:           payload.Data,
			})
	default:
		return unexpected(msg)
	}
	return nil
}

// subscribe joins every requested channel and acks them. A request naming any channel above the
// principal's role is refused as a whole and joins nothing.
func (h *Notifications) subscribe(c *gateway.Connection, channels []string) error {
	role := c.Principal().Role
	var refused []string
	for _, ch := range channels {
		if need, ok := privilegedChannels[ch]; ok && !role.AtLeast(need) {
			refused = append(refused, ch)
		}
	}
	if len(refused) > 0 {
		return errors.Forbid("channels " + strings.Join(refused, ",") + " need a higher role")
	}
	for _, ch := range channels {
		h.bc.JoinRoom(c, entity.NotifyRoom(ch))
	}
	h.bc.Reply(c, entity.EventSubscribed, subscribedPayload{Channels: channels})
	return nil
}

// NotifyUser pushes n to every connection of userID.
func (h *Notifications) NotifyUser(userID string, n entity.Notification) {
	h.bc.Publish(entity.TopicNotifications, entity.ToUser(userID), entity.EventNotificationNew, n)
}

// NotifyOrganization pushes n to every connection of orgID.
func (h *Notifications) NotifyOrganization(orgID string, n entity.Notification) {
	h.bc.Publish(entity.TopicNotifications, entity.ToRoom(entity.OrgRoom(orgID)), entity.EventNotificationNew, n)
}

// NotifyChannel pushes n to the subscribers of an ad hoc channel.
func (h *Notifications) NotifyChannel(channel string, n entity.Notification) {
	h.bc.Publish(entity.TopicNotifications, entity.ToRoom(entity.NotifyRoom(channel)), entity.EventNotificationNew, n)
}

// SystemAlert goes to every connection of every instance.
func (h *Notifications) SystemAlert(alert entity.SystemAlert) {
	h.bc.Publish(entity.TopicNotifications, entity.ToEveryone(), entity.EventSystemAlert, alert)
}
