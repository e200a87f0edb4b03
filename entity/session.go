package entity

import "time"

// Session is the authenticated identity attached to a request or realtime
// connection. It is never persisted; it is reconstructed per request by
// verifying the token signature and expiry.
type Session struct {
	SubjectID string    `json:"subject_id"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// CanSee reports whether events about the given message owner are visible
// to this session. Admins see everything; users only their own messages;
// guests see nothing.
func (s *Session) CanSee(ownerID string) bool {
	switch s.Role {
	case RoleAdmin:
		return true
	case RoleUser:
		return s.SubjectID == ownerID
	case RoleGuest:
		return false
	default:
		return false
	}
}
