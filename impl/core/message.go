package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mentorhub/entity"
	"mentorhub/internal/ids"
)

// PostMessage appends a message from the session subject. The realtime
// event is published only after the store write has returned: a failed
// write must never produce a phantom event.
func (c *Core) PostMessage(ctx context.Context, session *entity.Session, content string) (*entity.Message, error) {
	switch session.Role {
	case entity.RoleUser, entity.RoleAdmin:
	case entity.RoleGuest:
		return nil, entity.ErrForbidden
	default:
		return nil, entity.ErrForbidden
	}

	user, err := c.Profile(ctx, session.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}

	msg := &entity.Message{
		ID:        ids.New(),
		UserID:    user.ID,
		UserName:  user.Name,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	err = c.withRetry(ctx, func() error {
		return c.db.SaveMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	c.stream.Publish(entity.Event{Type: entity.EventNewMessage, Message: msg})
	c.notify(entity.DomainEvent{
		Kind:    entity.EventMessageSent,
		User:    user,
		Message: msg,
		At:      time.Now().UTC(),
	})
	c.log.Debug("message posted",
		slog.String("message_id", msg.ID),
		slog.String("user_id", user.ID),
	)
	return msg, nil
}

// ReplyMessage attaches an admin reply. The store sets reply, replied_at
// and the read flag in a single update; the message_reply event follows
// the committed write.
func (c *Core) ReplyMessage(ctx context.Context, messageID, reply string) (*entity.Message, error) {
	var msg *entity.Message
	err := c.withRetry(ctx, func() error {
		var inner error
		msg, inner = c.db.SetMessageReply(ctx, messageID, reply, time.Now().UTC())
		return inner
	})
	if err != nil {
		return nil, err
	}

	c.stream.Publish(entity.Event{Type: entity.EventMessageReply, Message: msg})
	c.log.Debug("message replied", slog.String("message_id", msg.ID))
	return msg, nil
}

// MarkMessageRead flips the read flag without replying.
func (c *Core) MarkMessageRead(ctx context.Context, messageID string) (*entity.Message, error) {
	var msg *entity.Message
	err := c.withRetry(ctx, func() error {
		var inner error
		msg, inner = c.db.SetMessageRead(ctx, messageID)
		return inner
	})
	return msg, err
}

// AdminMessages lists all messages newest-first; sinceID narrows the
// result for incremental polling as the fallback to the stream.
func (c *Core) AdminMessages(ctx context.Context, sinceID string) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := c.withRetry(ctx, func() error {
		var inner error
		messages, inner = c.db.AdminMessages(ctx, sinceID)
		return inner
	})
	return messages, err
}

// UserMessages lists one user's messages in creation order, the pull
// query a reconnecting client reconciles with.
func (c *Core) UserMessages(ctx context.Context, userID string) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := c.withRetry(ctx, func() error {
		var inner error
		messages, inner = c.db.UserMessages(ctx, userID)
		return inner
	})
	return messages, err
}
