// Structure of User Model in Stockpile, as read from the external user store.

package entity

// Saved in DB as user:<ID>
type User struct {
	ID             string `json:"id" redis:"id"`
	OrganizationID string `json:"organizationId" redis:"organization_id"`
	Role           Role   `json:"role" redis:"role"`
	Active         bool   `json:"active" redis:"active"`
	Name           string `json:"name,omitempty" redis:"name"`
	Email          string `json:"email,omitempty" redis:"email"`
}

// Principal returns the realtime identity of u.
func (u User) Principal() Principal {
	return Principal{UserID: u.ID, OrganizationID: u.OrganizationID, Role: u.Role}
}

// UserSnapshot is the payload of user emitters: enough to update client state without a fetch.
type UserSnapshot struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	Role           Role   `json:"role"`
	Active         bool   `json:"active"`
}
