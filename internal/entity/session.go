// Structure of a login session, written by the login flow and read by the Session Validator.

package entity

// Saved in DB as session:<ID>
type Session struct {
	ID     string `redis:"id"`
	UserID string `redis:"user_id"`
	// Hex digest of the issued token, never the token itself.
	TokenHash string `redis:"token_hash"`
	// Unix seconds.
	ExpiresAt int64 `redis:"expires_at"`
}
