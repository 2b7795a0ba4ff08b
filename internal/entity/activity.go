// Structure of the recent-activity entries reported by clients.

package entity

import "time"

// Saved in DB as a JSON element of the list activity:<OrganizationID>, newest first.
type ActivityEntry struct {
	ID       string                 `json:"id"`
	UserID   string                 `json:"userId"`
	Action   string                 `json:"action"`
	Resource string                 `json:"resource"`
	Details  map[string]interface{} `json:"details,omitempty"`
	At       time.Time              `json:"at"`
}
