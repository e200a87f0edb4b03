// Package core orchestrates the session and messaging backend: invite
// consumption, registration, the message channel and realtime publishing.
// Collaborators are narrow interfaces so stores and transports stay
// swappable.
package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mentorhub/entity"
	"mentorhub/impl/auth"
	"mentorhub/lib/sl"
)

// Storage is the durable store behind the ledger, directory and message
// log. Implemented by internal/database (MongoDB and MySQL).
type Storage interface {
	CreateInviteCode(ctx context.Context, code *entity.InviteCode) error
	GetInviteCode(ctx context.Context, code string) (*entity.InviteCode, error)
	ConsumeInviteCode(ctx context.Context, code string) (*entity.InviteCode, error)
	DeactivateInviteCode(ctx context.Context, code string) error

	CreateUser(ctx context.Context, user *entity.User) error
	GetUser(ctx context.Context, id string) (*entity.User, error)
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	SetTopicProgress(ctx context.Context, userID, topic string, ratio float64) error

	SaveMessage(ctx context.Context, msg *entity.Message) error
	SetMessageReply(ctx context.Context, messageID, reply string, at time.Time) (*entity.Message, error)
	SetMessageRead(ctx context.Context, messageID string) (*entity.Message, error)
	AdminMessages(ctx context.Context, sinceID string) ([]*entity.Message, error)
	UserMessages(ctx context.Context, userID string) ([]*entity.Message, error)
}

// Broadcaster fans realtime events out to subscribed connections.
type Broadcaster interface {
	Subscribe(ctx context.Context, session *entity.Session) <-chan entity.Event
	Publish(evt entity.Event)
}

// Notifier hands domain events to the external messaging bridge.
type Notifier interface {
	NotifyEvent(evt entity.DomainEvent)
}

type Config struct {
	InviteCodeLength     int
	InviteDefaultMaxUses int
}

type Core struct {
	db       Storage
	auth     *auth.Auth
	stream   Broadcaster
	notifier Notifier
	log      *slog.Logger
	config   Config
}

func New(db Storage, authService *auth.Auth, stream Broadcaster, log *slog.Logger, cfg Config) *Core {
	if cfg.InviteCodeLength == 0 {
		cfg.InviteCodeLength = 12
	}
	if cfg.InviteDefaultMaxUses == 0 {
		cfg.InviteDefaultMaxUses = 1
	}
	return &Core{
		db:     db,
		auth:   authService,
		stream: stream,
		log:    log.With(sl.Module("core")),
		config: cfg,
	}
}

// SetNotifier connects the messaging bridge. Optional; without it domain
// events are dropped.
func (c *Core) SetNotifier(n Notifier) {
	c.notifier = n
}

// Login delegates credential verification to the auth service.
func (c *Core) Login(ctx context.Context, email, password string) (*entity.User, string, error) {
	return c.auth.Login(ctx, email, password)
}

// VerifyToken reconstructs a session from a signed token; used by the
// authenticate middleware and the realtime handshake.
func (c *Core) VerifyToken(tokenString string) (*entity.Session, error) {
	return c.auth.Verify(tokenString)
}

// Subscribe attaches an authenticated session to the realtime stream.
func (c *Core) Subscribe(ctx context.Context, session *entity.Session) <-chan entity.Event {
	return c.stream.Subscribe(ctx, session)
}

const storeRetryBackoff = 100 * time.Millisecond

// withRetry retries a store call exactly once when the store reports
// unavailability. Terminal errors, invite conflicts included, come back
// unchanged on the first attempt.
func (c *Core) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, entity.ErrUnavailable) {
		return err
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(storeRetryBackoff):
	}
	return fn()
}

// notify emits a domain event to the bridge, fire-and-forget after the
// store commit has already returned.
func (c *Core) notify(evt entity.DomainEvent) {
	if c.notifier == nil {
		return
	}
	go c.notifier.NotifyEvent(evt)
}
