package core

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mentorhub/entity"
	"mentorhub/lib/sl"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func generateCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// GenerateInvite creates a new invite code granting the given role.
// maxUses <= 0 falls back to the configured default; expiresIn zero means
// the code never expires. A duplicate random code is regenerated.
func (c *Core) GenerateInvite(ctx context.Context, role entity.Role, maxUses int, expiresIn time.Duration, issuer string) (*entity.InviteCode, error) {
	switch role {
	case entity.RoleUser, entity.RoleAdmin:
	case entity.RoleGuest:
		return nil, fmt.Errorf("%w: guest codes cannot be issued", entity.ErrForbidden)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", entity.ErrForbidden, role)
	}
	if maxUses <= 0 {
		maxUses = c.config.InviteDefaultMaxUses
	}

	var expiresAt *time.Time
	if expiresIn > 0 {
		t := time.Now().UTC().Add(expiresIn)
		expiresAt = &t
	}

	for attempt := 0; attempt < 3; attempt++ {
		code, err := generateCode(c.config.InviteCodeLength)
		if err != nil {
			return nil, err
		}
		invite := &entity.InviteCode{
			Code:      code,
			Role:      role,
			MaxUses:   maxUses,
			ExpiresAt: expiresAt,
			Active:    true,
			IssuedBy:  issuer,
			CreatedAt: time.Now().UTC(),
		}
		err = c.withRetry(ctx, func() error {
			return c.db.CreateInviteCode(ctx, invite)
		})
		if errors.Is(err, entity.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.log.Info("invite code generated",
			sl.Secret("code", code),
			slog.String("role", string(role)),
			slog.Int("max_uses", maxUses),
			slog.String("issued_by", issuer),
		)
		return invite, nil
	}
	return nil, fmt.Errorf("generate invite: %w", entity.ErrConflict)
}

// VerifyInvite reports whether the code would currently be accepted and
// which role it grants, without consuming a use.
func (c *Core) VerifyInvite(ctx context.Context, code string) (bool, entity.Role, error) {
	var invite *entity.InviteCode
	err := c.withRetry(ctx, func() error {
		var inner error
		invite, inner = c.db.GetInviteCode(ctx, code)
		return inner
	})
	if err != nil {
		if errors.Is(err, entity.ErrInviteNotFound) {
			return false, "", nil
		}
		return false, "", err
	}
	if !invite.Usable(time.Now().UTC()) {
		return false, "", nil
	}
	return true, invite.Role, nil
}

// RevokeInvite deactivates a code. Deactivated codes are kept, never
// deleted, so the 1:1 registration binding stays auditable.
func (c *Core) RevokeInvite(ctx context.Context, code string) error {
	return c.withRetry(ctx, func() error {
		return c.db.DeactivateInviteCode(ctx, code)
	})
}
