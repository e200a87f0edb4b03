package entity

import (
	"time"

	"github.com/biter777/countries"
)

// Role controls access level within the program.
// The set is closed: every switch over Role must handle all three values,
// so a new role cannot silently pass an authorization gate.
type Role string

const (
	RoleGuest Role = "guest" // unauthenticated or invite-only visitor
	RoleUser  Role = "user"  // registered program participant
	RoleAdmin Role = "admin" // full access, can manage invites and reply to messages
)

// ParseRole maps a stored or transmitted role string onto the closed set.
// Anything unknown degrades to RoleGuest rather than failing open.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleUser:
		return RoleUser
	default:
		return RoleGuest
	}
}

// User represents a program participant or administrator.
// Created once at registration, bound 1:1 to the invite code that was
// consumed; the role is fixed at creation from the code's grant.
type User struct {
	ID             string             `json:"id" bson:"id"`
	Name           string             `json:"name" bson:"name" validate:"required"`
	Email          string             `json:"email,omitempty" bson:"email,omitempty"`
	PasswordHash   string             `json:"-" bson:"password_hash,omitempty"`
	Role           Role               `json:"role" bson:"role"`
	Language       string             `json:"language" bson:"language"`
	Country        string             `json:"country,omitempty" bson:"country,omitempty"`
	ExternalID     string             `json:"external_id,omitempty" bson:"external_id,omitempty"`
	TelegramID     int64              `json:"telegram_id,omitempty" bson:"telegram_id,omitempty"`
	InviteCode     string             `json:"invite_code,omitempty" bson:"invite_code,omitempty"`
	AssignedTopics []string           `json:"assigned_topics" bson:"assigned_topics"`
	Progress       map[string]float64 `json:"progress" bson:"progress"`
	RegisteredAt   time.Time          `json:"registered_at" bson:"registered_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasTopic checks whether the topic is assigned to the user.
func (u *User) HasTopic(topic string) bool {
	for _, t := range u.AssignedTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// CountryCode normalizes the free-form country value to an ISO 3166-1
// alpha-2 code. Returns "" when the value cannot be resolved.
func (u *User) CountryCode() string {
	if u.Country == "" {
		return ""
	}
	if len(u.Country) == 2 {
		return u.Country
	}
	country := countries.ByName(u.Country)
	code := country.Alpha2()
	if len(code) == 2 {
		return code
	}
	return ""
}
