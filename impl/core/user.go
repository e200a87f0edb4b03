package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mentorhub/entity"
	"mentorhub/lib/sl"
)

// Register consumes the invite code and creates the user bound to it. The
// consumption is the critical section; it happens atomically in the store,
// so two concurrent registrations against a single-use code produce
// exactly one user. Consume conflicts are terminal and never retried here:
// retrying after genuine exhaustion must fail, not loop.
func (c *Core) Register(ctx context.Context, req *entity.RegisterRequest) (*entity.User, string, error) {
	invite, err := c.db.ConsumeInviteCode(ctx, req.InviteCode)
	if errors.Is(err, entity.ErrUnavailable) {
		// Only unavailability is retried; a second consume of a still-valid
		// code is a fresh attempt, not a double spend.
		select {
		case <-ctx.Done():
			return nil, "", err
		case <-time.After(storeRetryBackoff):
		}
		invite, err = c.db.ConsumeInviteCode(ctx, req.InviteCode)
	}
	if err != nil {
		return nil, "", err
	}

	user := &entity.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Role:         invite.Role,
		Language:     req.Language,
		Country:      req.Country,
		ExternalID:   req.ExternalID,
		InviteCode:   invite.Code,
		Progress:     make(map[string]float64),
		RegisteredAt: time.Now().UTC(),
	}
	if code := user.CountryCode(); code != "" {
		user.Country = code
	}

	err = c.withRetry(ctx, func() error {
		return c.db.CreateUser(ctx, user)
	})
	if err != nil {
		// The consumed use is burned; log it so an admin can reissue.
		c.log.Error("user creation failed after invite consumption",
			sl.Err(err),
			sl.Secret("code", invite.Code),
		)
		return nil, "", err
	}

	signed, err := c.auth.IssueFor(user)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	c.log.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
		sl.Secret("code", invite.Code),
	)
	c.notify(entity.DomainEvent{
		Kind: entity.EventUserRegistered,
		User: user,
		At:   time.Now().UTC(),
	})
	return user, signed, nil
}

// Profile returns the directory record for the session subject.
func (c *Core) Profile(ctx context.Context, userID string) (*entity.User, error) {
	var user *entity.User
	err := c.withRetry(ctx, func() error {
		var inner error
		user, inner = c.db.GetUser(ctx, userID)
		return inner
	})
	return user, err
}

// CompleteTopic records full progress on an assigned topic and announces
// it to the bridge.
func (c *Core) CompleteTopic(ctx context.Context, session *entity.Session, topicID string) (*entity.User, error) {
	user, err := c.Profile(ctx, session.SubjectID)
	if err != nil {
		return nil, err
	}
	if !user.HasTopic(topicID) {
		return nil, fmt.Errorf("topic %q not assigned: %w", topicID, entity.ErrNotFound)
	}

	err = c.withRetry(ctx, func() error {
		return c.db.SetTopicProgress(ctx, user.ID, topicID, 1.0)
	})
	if err != nil {
		return nil, err
	}
	user.Progress[topicID] = 1.0

	c.log.Info("topic completed",
		slog.String("user_id", user.ID),
		slog.String("topic", topicID),
	)
	c.notify(entity.DomainEvent{
		Kind:  entity.EventTopicCompleted,
		User:  user,
		Topic: topicID,
		At:    time.Now().UTC(),
	})
	return user, nil
}
