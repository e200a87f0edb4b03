package cont

import (
	"context"

	"mentorhub/entity"
)

type ctxKey string

const SessionKey ctxKey = "session"

func PutSession(c context.Context, session *entity.Session) context.Context {
	return context.WithValue(c, SessionKey, *session)
}

// GetSession returns the authenticated session stored by the authenticate
// middleware. A missing session comes back as a guest with no subject.
func GetSession(c context.Context) *entity.Session {
	session, ok := c.Value(SessionKey).(entity.Session)
	if !ok {
		return &entity.Session{Role: entity.RoleGuest}
	}
	return &session
}
