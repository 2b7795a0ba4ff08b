// Structure of the authenticated identity behind a realtime connection.

package entity

import "fmt"

// Role of a user inside its organization.
type Role string

const (
	RoleUser        Role = "user"
	RoleManager     Role = "manager"
	RoleAdmin       Role = "admin"
	RoleSystemAdmin Role = "system_admin"
)

var roleRank = map[Role]int{
	RoleUser:        1,
	RoleManager:     2,
	RoleAdmin:       3,
	RoleSystemAdmin: 4,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r carries every privilege of other.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && roleRank[r] >= roleRank[other]
}

// Principal is derived once per connection from a validated credential and never changes afterwards.
type Principal struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	Role           Role   `json:"role"`
}

// Rooms returns the rooms a connection of p joins automatically.
// Role rooms are additive: admins also join the manager room.
func (p Principal) Rooms() []string {
	rooms := []string{OrgRoom(p.OrganizationID), UserRoom(p.UserID)}
	if p.Role.AtLeast(RoleManager) {
		rooms = append(rooms, ManagerRoom(p.OrganizationID))
	}
	if p.Role.AtLeast(RoleAdmin) {
		rooms = append(rooms, AdminRoom(p.OrganizationID))
	}
	return rooms
}

// OrgRoom is the room of every connection of an organization.
func OrgRoom(orgID string) string {
	return "org:" + orgID
}

// ManagerRoom is joined by managers and above.
func ManagerRoom(orgID string) string {
	return fmt.Sprintf("org:%s:managers", orgID)
}

// AdminRoom is joined by admins and system admins.
func AdminRoom(orgID string) string {
	return fmt.Sprintf("org:%s:admins", orgID)
}

// UserRoom is the personal room used for direct-to-user pushes.
func UserRoom(userID string) string {
	return "user:" + userID
}

// NotifyRoom is an ad hoc room joined on client request.
func NotifyRoom(channel string) string {
	return "notify:" + channel
}
