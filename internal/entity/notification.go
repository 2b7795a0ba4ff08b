// Structure of notification payloads.

package entity

// Notification is pushed to a user or an organization. Its read state lives outside the gateway.
type Notification struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Link    string                 `json:"link,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// AlertLevel of a system-wide alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// SystemAlert is delivered to every connection.
type SystemAlert struct {
	Level   AlertLevel `json:"level" valid:"required,in(info|warning|critical)"`
	Message string     `json:"message" valid:"required"`
}
