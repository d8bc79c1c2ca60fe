package domain

import "time"

// Audit actions written by the auth flows.
const (
	ActionLogin          = "login"
	ActionLoginFailure   = "login_failure"
	ActionRefresh        = "refresh"
	ActionLogout         = "logout"
	ActionPasswordReset  = "password_reset"
	ActionPasswordChange = "password_change"
)

// AuthEvent is one audited auth operation. UserID and SessionID are empty when unknown
// (e.g. a failed login for an unknown email).
type AuthEvent struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId,omitempty" json:"user_id,omitempty"`
	SessionID string    `bson:"sessionId,omitempty" json:"session_id,omitempty"`
	Action    string    `bson:"action" json:"action"`
	IP        string    `bson:"ip" json:"ip"`
	Metadata  string    `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}
