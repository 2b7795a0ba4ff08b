// Package events holds the domain event handlers of Stockpile: inventory, users and presence, notifications.
// Handlers are stateless. They translate inbound client messages into room broadcasts and expose the
// emitters the CRUD layer calls after a committed mutation. Emitters never fail their caller.
package events

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/internal/gateway"
	"fmt"
)

// Broadcaster is the part of the gateway the handlers use.
type Broadcaster interface {
	// Publish delivers locally and to sibling instances. It logs failures instead of returning them.
	Publish(topic entity.RelayTopic, target entity.Target, name entity.EventName, payload interface{})
	// Reply sends to one connection only.
	Reply(c *gateway.Connection, name entity.EventName, payload interface{})
	JoinRoom(c *gateway.Connection, room string) bool
}

// unexpected is returned when a handler receives a payload it was not mounted for.
func unexpected(msg entity.InboundMessage) error {
	return errors.Malformed(fmt.Sprintf("unexpected payload %T for %s", msg.Payload, msg.Name))
}

// orgOthers targets the organization of c, without c itself.
func orgOthers(c *gateway.Connection) entity.Target {
	return entity.ToRoom(entity.OrgRoom(c.Principal().OrganizationID)).Excluding(c.ID())
}
