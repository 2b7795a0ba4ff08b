// Inventory handler: editing soft-locks, filters, bulk operations and the inventory emitters.

package events

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/gateway"
	"Stockpile/pkg/log"
	"context"
)

type Inventory struct {
	bc     Broadcaster
	logger log.Logger
}

func NewInventory(bc Broadcaster, logger log.Logger) *Inventory {
	return &Inventory{bc: bc, logger: logger}
}

func (h *Inventory) Events() []entity.EventName {
	return []entity.EventName{
		entity.InSubscribeInventory,
		entity.InSearchInventory,
		entity.InFilterUpdate,
		entity.InItemEditingStart,
		entity.InItemEditingDone,
		entity.InBulkOpStart,
		entity.InLowStockAcknowledge,
	}
}

type editingPayload struct {
	ItemID string `json:"itemId"`
	UserID string `json:"userId"`
}

type filterPayload struct {
	UserID  string                 `json:"userId"`
	Filters map[string]interface{} `json:"filters"`
}

type bulkPayload struct {
	UserID  string   `json:"userId"`
	Type    string   `json:"type"`
	ItemIDs []string `json:"itemIds"`
}

type searchPayload struct {
	Query string                `json:"query"`
	Items []entity.ItemSnapshot `json:"items"`
	Total int                   `json:"total"`
}

func (h *Inventory) Handle(ctx context.Context, c *gateway.Connection, msg entity.InboundMessage) error {
	p := c.Principal()
	switch payload := msg.Payload.(type) {
	case *entity.SubscribeInventory:
		h.bc.Reply(c, entity.EventInventoryReady, map[string]string{"organizationId": p.OrganizationID})
	case *entity.SearchInventory:
		// Search itself is served by the REST layer; the socket only acknowledges the query.
		h.bc.Reply(c, entity.EventSearchResults, searchPayload{Query: payload.Query, Items: []entity.ItemSnapshot{}})
	case *entity.FilterUpdate:
		h.bc.Publish(entity.TopicInventory, orgOthers(c), entity.EventFilterUpdated,
			filterPayload{UserID: p.UserID, Filters: payload.Filters})
	case *entity.ItemRef:
		switch msg.Name {
		case entity.InItemEditingStart:
			h.bc.Publish(entity.TopicInventory, orgOthers(c), entity.EventItemEditing,
				editingPayload{ItemID: payload.ItemID, UserID: p.UserID})
		case entity.InItemEditingDone:
			h.bc.Publish(entity.TopicInventory, orgOthers(c), entity.EventItemEditingDone,
				editingPayload{ItemID: payload.ItemID, UserID: p.UserID})
		case entity.InLowStockAcknowledge:
			h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(p.OrganizationID)), entity.EventLowStockAcked,
				editingPayload{ItemID: payload.ItemID, UserID: p.UserID})
		default:
			return unexpected(msg)
		}
	case *entity.BulkOpStart:
		h.bc.Publish(entity.TopicInventory, orgOthers(c), entity.EventBulkInProgress,
			bulkPayload{UserID: p.UserID, Type: payload.Type, ItemIDs: payload.ItemIDs})
	default:
		return unexpected(msg)
	}
	return nil
}

// crossed reports a move from above threshold to at or below it. A nil previous, a new item, counts as above.
func crossed(previous *int, current, threshold int) bool {
	if current > threshold {
		return false
	}
	return previous == nil || *previous > threshold
}

// alerts emits the low-stock and out-of-stock alerts implied by a quantity moving from previous to item.Quantity.
func (h *Inventory) alerts(item entity.ItemSnapshot, previous *int) {
	alert := entity.StockAlert{
		ItemID:      item.ID,
		Name:        item.Name,
		Location:    item.Location,
		Quantity:    item.Quantity,
		MinQuantity: item.MinQuantity,
	}
	if item.MinQuantity > 0 && crossed(previous, item.Quantity, item.MinQuantity) {
		h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.ManagerRoom(item.OrganizationID)), entity.EventLowStockAlert, alert)
	}
	if crossed(previous, item.Quantity, 0) {
		h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(item.OrganizationID)), entity.EventOutOfStockAlert, alert)
	}
}

// ItemCreated announces a new item. A new item already at or below its thresholds alerts as well.
func (h *Inventory) ItemCreated(item entity.ItemSnapshot, actorID string) {
	h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(item.OrganizationID)), entity.EventItemCreated,
		entity.ItemEvent{Item: &item, ItemID: item.ID, ActorID: actorID})
	h.alerts(item, nil)
}

// ItemUpdated announces an edit. previousQuantity is the quantity before the edit.
func (h *Inventory) ItemUpdated(item entity.ItemSnapshot, previousQuantity int, changes map[string]interface{}, actorID string) {
	h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(item.OrganizationID)), entity.EventItemUpdated,
		entity.ItemEvent{Item: &item, ItemID: item.ID, Changes: changes, ActorID: actorID})
	if previousQuantity != item.Quantity {
		h.alerts(item, &previousQuantity)
	}
}

func (h *Inventory) ItemDeleted(orgID, itemID, actorID string) {
	h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(orgID)), entity.EventItemDeleted,
		entity.ItemEvent{ItemID: itemID, ActorID: actorID})
}

// QuantityChanged announces a stock change of item from previous to item.Quantity, then any threshold alert.
func (h *Inventory) QuantityChanged(item entity.ItemSnapshot, previous int, actorID string) {
	h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(item.OrganizationID)), entity.EventQuantityChanged,
		entity.QuantityEvent{
			ItemID:   item.ID,
			Name:     item.Name,
			Previous: previous,
			Quantity: item.Quantity,
			Delta:    item.Quantity - previous,
			ActorID:  actorID,
		})
	h.alerts(item, &previous)
}

func (h *Inventory) MovementCreated(orgID string, movement entity.MovementSnapshot) {
	h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(orgID)), entity.EventMovementCreated, movement)
}

func (h *Inventory) CountCompleted(orgID string, summary entity.CountSummary) {
	h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(orgID)), entity.EventCountCompleted, summary)
}

func (h *Inventory) BulkComplete(orgID string, result entity.BulkResult) {
	h.bc.Publish(entity.TopicInventory, entity.ToRoom(entity.OrgRoom(orgID)), entity.EventBulkComplete, result)
}
