// Structure of Stockpile realtime Metrics Model.

package entity

// Saved in DB as <prefix>:metrics:<instance>
type Metrics struct {
	Instances         int  `json:"instances" redis:"-"`
	ActiveConnections int  `json:"activeConnections" redis:"active_connections"`
	OnlinePrincipals  int  `json:"onlinePrincipals" redis:"online_principals"`
	Rooms             int  `json:"rooms" redis:"rooms"`
	RelayConnected    bool `json:"relayConnected" redis:"relay_connected"`
}
