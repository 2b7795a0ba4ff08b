// Structure of the inventory payloads pushed by the inventory emitters.

package entity

// ItemSnapshot is the committed state of an inventory item as supplied by the CRUD layer.
type ItemSnapshot struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	SKU            string `json:"sku,omitempty"`
	Location       string `json:"location,omitempty"`
	Quantity       int    `json:"quantity"`
	MinQuantity    int    `json:"minQuantity"`
}

// ItemEvent is the payload of item created/updated/deleted.
type ItemEvent struct {
	Item    *ItemSnapshot          `json:"item,omitempty"`
	ItemID  string                 `json:"itemId"`
	Changes map[string]interface{} `json:"changes,omitempty"`
	ActorID string                 `json:"actorId,omitempty"`
}

// QuantityEvent is the payload of quantity:changed.
type QuantityEvent struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Previous int    `json:"previous"`
	Quantity int    `json:"quantity"`
	Delta    int    `json:"delta"`
	ActorID  string `json:"actorId,omitempty"`
}

// StockAlert is the payload of low-stock and out-of-stock alerts.
type StockAlert struct {
	ItemID      string `json:"itemId"`
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"minQuantity"`
}

// MovementSnapshot is a committed stock movement.
type MovementSnapshot struct {
	ID           string `json:"id"`
	ItemID       string `json:"itemId"`
	Type         string `json:"type"`
	Quantity     int    `json:"quantity"`
	FromLocation string `json:"fromLocation,omitempty"`
	ToLocation   string `json:"toLocation,omitempty"`
	CreatedBy    string `json:"createdBy,omitempty"`
}

// CountSummary is the result of a completed stock count.
type CountSummary struct {
	ID            string `json:"id"`
	Location      string `json:"location,omitempty"`
	ItemsCounted  int    `json:"itemsCounted"`
	Discrepancies int    `json:"discrepancies"`
	CompletedBy   string `json:"completedBy,omitempty"`
}

// BulkResult is the outcome of a bulk operation.
type BulkResult struct {
	Type      string   `json:"type"`
	ItemIDs   []string `json:"itemIds"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	ActorID   string   `json:"actorId,omitempty"`
}
