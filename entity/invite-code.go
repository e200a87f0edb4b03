package entity

import "time"

// InviteCode gates registration. A code grants a fixed role and may be
// consumed at most MaxUses times; consumption is an atomic
// check-and-increment in the store, never a read followed by a write.
// Codes are deactivated when revoked, never deleted.
type InviteCode struct {
	Code      string     `json:"code" bson:"code"`
	Role      Role       `json:"role" bson:"role"`
	MaxUses   int        `json:"max_uses" bson:"max_uses"`
	UsedCount int        `json:"used_count" bson:"used_count"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Active    bool       `json:"active" bson:"active"`
	IssuedBy  string     `json:"issued_by" bson:"issued_by"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
}

// SingleUse reports whether the code expires after one consumption.
func (c *InviteCode) SingleUse() bool {
	return c.MaxUses == 1
}

// Remaining returns how many consumptions are left.
func (c *InviteCode) Remaining() int {
	r := c.MaxUses - c.UsedCount
	if r < 0 {
		return 0
	}
	return r
}

// Expired checks ExpiresAt against the given instant. A nil ExpiresAt
// means the code never expires.
func (c *InviteCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Usable reports whether a consumption at the given instant would succeed.
func (c *InviteCode) Usable(now time.Time) bool {
	return c.Active && !c.Expired(now) && c.UsedCount < c.MaxUses
}
