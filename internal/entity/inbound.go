// Inbound client messages: a closed set of event kinds, each with its own payload schema.

package entity

import (
	"Stockpile/internal/errors"
	"Stockpile/pkg/validations"
	"bytes"
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/goccy/go-json"
)

// Inbound events.
const (
	InSubscribeInventory     EventName = "subscribe-inventory"
	InSearchInventory        EventName = "search-inventory"
	InFilterUpdate           EventName = "filter-update"
	InItemEditingStart       EventName = "item-editing-start"
	InItemEditingDone        EventName = "item-editing-done"
	InBulkOpStart            EventName = "bulk-op-start"
	InLowStockAcknowledge    EventName = "lowstock-acknowledge"
	InActivity               EventName = "activity"
	InPresenceUpdate         EventName = "presence-update"
	InTypingStart            EventName = "typing-start"
	InTypingStop             EventName = "typing-stop"
	InLocationUpdate         EventName = "location-update"
	InNotificationRead       EventName = "notification-read"
	InNotificationReadAll    EventName = "notification-read-all"
	InNotificationsSubscribe EventName = "notifications-subscribe"
	InNotificationAction     EventName = "notification-action"
)

// maxSubscribeChannels bounds a single notifications-subscribe request.
const maxSubscribeChannels = 32

// InboundPayload is implemented only by the payload types of this file.
type InboundPayload interface {
	inbound()
	validate() error
}

// InboundMessage is a decoded client message.
type InboundMessage struct {
	Name    EventName
	Payload InboundPayload
}

type schema struct {
	// payload is absent for these kinds
	empty bool
	new   func() InboundPayload
}

var inboundSchemas = map[EventName]schema{
	InSubscribeInventory:     {empty: true, new: func() InboundPayload { return &SubscribeInventory{} }},
	InSearchInventory:        {new: func() InboundPayload { return &SearchInventory{} }},
	InFilterUpdate:           {new: func() InboundPayload { return &FilterUpdate{} }},
	InItemEditingStart:       {new: func() InboundPayload { return &ItemRef{} }},
	InItemEditingDone:        {new: func() InboundPayload { return &ItemRef{} }},
	InBulkOpStart:            {new: func() InboundPayload { return &BulkOpStart{} }},
	InLowStockAcknowledge:    {new: func() InboundPayload { return &ItemRef{} }},
	InActivity:               {new: func() InboundPayload { return &Activity{} }},
	InPresenceUpdate:         {new: func() InboundPayload { return &PresenceUpdate{} }},
	InTypingStart:            {new: func() InboundPayload { return &Typing{} }},
	InTypingStop:             {new: func() InboundPayload { return &Typing{} }},
	InLocationUpdate:         {new: func() InboundPayload { return &LocationUpdate{} }},
	InNotificationRead:       {new: func() InboundPayload { return &NotificationRef{} }},
	InNotificationReadAll:    {empty: true, new: func() InboundPayload { return &NotificationReadAll{} }},
	InNotificationsSubscribe: {new: func() InboundPayload { return &NotificationsSubscribe{} }},
	InNotificationAction:     {new: func() InboundPayload { return &NotificationAction{} }},
}

// IsInbound reports whether name is a known inbound kind.
func IsInbound(name EventName) bool {
	_, ok := inboundSchemas[name]
	return ok
}

type inboundFrame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeInbound parses a client frame. Unknown names and invalid payloads fail with ErrMalformedMessage.
func DecodeInbound(raw []byte) (InboundMessage, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return InboundMessage{}, errors.Malformed("frame is not a JSON object")
	}
	sch, ok := inboundSchemas[frame.Event]
	if !ok {
		return InboundMessage{Name: frame.Event}, errors.Malformed(fmt.Sprintf("unknown event %q", frame.Event))
	}
	msg := InboundMessage{Name: frame.Event, Payload: sch.new()}
	data := bytes.TrimSpace(frame.Data)
	absent := len(data) == 0 || bytes.Equal(data, []byte("null"))
	switch {
	case absent && sch.empty:
		return msg, nil
	case absent:
		return msg, errors.Malformed(fmt.Sprintf("%s requires data", frame.Event))
	}
	if err := json.Unmarshal(data, msg.Payload); err != nil {
		return msg, errors.Malformed(fmt.Sprintf("%s: %v", frame.Event, err))
	}
	if err := msg.Payload.validate(); err != nil {
		return msg, errors.Malformed(fmt.Sprintf("%s: %v", frame.Event, err))
	}
	return msg, nil
}

func validateStruct(v interface{}) error {
	validations.RegisterCustomValidations()
	if _, err := govalidator.ValidateStruct(v); err != nil {
		return err
	}
	return nil
}

// SubscribeInventory carries no data.
type SubscribeInventory struct{}

func (*SubscribeInventory) inbound()        {}
func (*SubscribeInventory) validate() error { return nil }

// SearchInventory is sent as a bare JSON string.
type SearchInventory struct {
	Query string
}

func (*SearchInventory) inbound() {}
func (p *SearchInventory) validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is empty")
	}
	return nil
}

func (p *SearchInventory) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.Query)
}

// FilterUpdate is an arbitrary filter object mirrored to the organization.
type FilterUpdate struct {
	Filters map[string]interface{}
}

func (*FilterUpdate) inbound() {}
func (p *FilterUpdate) validate() error {
	if p.Filters == nil {
		return fmt.Errorf("filter must be an object")
	}
	return nil
}

func (p *FilterUpdate) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.Filters)
}

// ItemRef is a bare item id, used by editing and low-stock acknowledgment messages.
type ItemRef struct {
	ItemID string
}

func (*ItemRef) inbound() {}
func (p *ItemRef) validate() error {
	if strings.TrimSpace(p.ItemID) == "" {
		return fmt.Errorf("item id is empty")
	}
	return nil
}

func (p *ItemRef) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.ItemID)
}

// BulkOpStart announces a bulk operation over several items.
type BulkOpStart struct {
	Type    string   `json:"type" valid:"required"`
	ItemIDs []string `json:"itemIds" valid:"-"`
}

func (*BulkOpStart) inbound() {}
func (p *BulkOpStart) validate() error {
	if err := validateStruct(p); err != nil {
		return err
	}
	if len(p.ItemIDs) == 0 {
		return fmt.Errorf("itemIds is empty")
	}
	return nil
}

// Activity is a user action reported to admins.
type Activity struct {
	Action   string                 `json:"action" valid:"required"`
	Resource string                 `json:"resource" valid:"required"`
	Details  map[string]interface{} `json:"details,omitempty" valid:"-"`
}

func (*Activity) inbound()          {}
func (p *Activity) validate() error { return validateStruct(p) }

// PresenceStatus of a user. Clients may only report active, idle or away.
type PresenceStatus string

const (
	PresenceActive  PresenceStatus = "active"
	PresenceIdle    PresenceStatus = "idle"
	PresenceAway    PresenceStatus = "away"
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceUpdate is sent as a bare status string.
type PresenceUpdate struct {
	Status PresenceStatus
}

func (*PresenceUpdate) inbound() {}
func (p *PresenceUpdate) validate() error {
	switch p.Status {
	case PresenceActive, PresenceIdle, PresenceAway:
		return nil
	}
	return fmt.Errorf("status:must be one of active, idle, away")
}

func (p *PresenceUpdate) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, (*string)(&p.Status))
}

// Typing marks a user typing on a resource.
type Typing struct {
	Resource   string `json:"resource" valid:"required"`
	ResourceID string `json:"resourceId" valid:"required"`
}

func (*Typing) inbound()          {}
func (p *Typing) validate() error { return validateStruct(p) }

// LocationUpdate reports where in the warehouse a user is working.
type LocationUpdate struct {
	Area    string                 `json:"area" valid:"required"`
	Details map[string]interface{} `json:"details,omitempty" valid:"-"`
}

func (*LocationUpdate) inbound()          {}
func (p *LocationUpdate) validate() error { return validateStruct(p) }

// NotificationRef is a bare notification id.
type NotificationRef struct {
	NotificationID string
}

func (*NotificationRef) inbound() {}
func (p *NotificationRef) validate() error {
	if strings.TrimSpace(p.NotificationID) == "" {
		return fmt.Errorf("notification id is empty")
	}
	return nil
}

func (p *NotificationRef) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.NotificationID)
}

// NotificationReadAll carries no data.
type NotificationReadAll struct{}

func (*NotificationReadAll) inbound()        {}
func (*NotificationReadAll) validate() error { return nil }

// NotificationsSubscribe is a bare array of channel names.
type NotificationsSubscribe struct {
	Channels []string
}

func (*NotificationsSubscribe) inbound() {}
func (p *NotificationsSubscribe) validate() error {
	if len(p.Channels) == 0 || len(p.Channels) > maxSubscribeChannels {
		return fmt.Errorf("channels must hold 1 to %d names", maxSubscribeChannels)
	}
	for _, ch := range p.Channels {
		if !validations.IsChannelName(ch) {
			return fmt.Errorf("invalid channel name %q", ch)
		}
	}
	return nil
}

func (p *NotificationsSubscribe) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.Channels)
}

// NotificationAction is a user's response to an actionable notification.
type NotificationAction struct {
	NotificationID string                 `json:"notificationId" valid:"required"`
	Action         string                 `json:"action" valid:"required"`
	Data           map[string]interface{} `json:"data,omitempty" valid:"-"`
}

func (*NotificationAction) inbound()          {}
func (p *NotificationAction) validate() error { return validateStruct(p) }
