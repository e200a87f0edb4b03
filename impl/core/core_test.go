package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"mentorhub/entity"
	"mentorhub/impl/auth"
	"mentorhub/internal/stream"
	"mentorhub/internal/token"
)

// memoryStore is an in-memory Storage with the same atomicity contract as
// the database implementations: ConsumeInviteCode is a single serialized
// check-and-increment.
type memoryStore struct {
	mu       sync.Mutex
	invites  map[string]*entity.InviteCode
	users    map[string]*entity.User
	messages []*entity.Message

	failNext int // induce ErrUnavailable on the next n calls
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		invites: make(map[string]*entity.InviteCode),
		users:   make(map[string]*entity.User),
	}
}

func (m *memoryStore) unavailable() error {
	if m.failNext > 0 {
		m.failNext--
		return entity.ErrUnavailable
	}
	return nil
}

func (m *memoryStore) CreateInviteCode(_ context.Context, code *entity.InviteCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return err
	}
	if _, ok := m.invites[code.Code]; ok {
		return entity.ErrConflict
	}
	cp := *code
	m.invites[code.Code] = &cp
	return nil
}

func (m *memoryStore) GetInviteCode(_ context.Context, code string) (*entity.InviteCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return nil, err
	}
	invite, ok := m.invites[code]
	if !ok {
		return nil, entity.ErrInviteNotFound
	}
	cp := *invite
	return &cp, nil
}

func (m *memoryStore) ConsumeInviteCode(_ context.Context, code string) (*entity.InviteCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return nil, err
	}
	invite, ok := m.invites[code]
	if !ok {
		return nil, entity.ErrInviteNotFound
	}
	now := time.Now().UTC()
	switch {
	case !invite.Active:
		return nil, entity.ErrInviteInactive
	case invite.Expired(now):
		return nil, entity.ErrInviteExpired
	case invite.UsedCount >= invite.MaxUses:
		return nil, entity.ErrInviteExhausted
	}
	invite.UsedCount++
	cp := *invite
	return &cp, nil
}

func (m *memoryStore) DeactivateInviteCode(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invite, ok := m.invites[code]
	if !ok {
		return entity.ErrInviteNotFound
	}
	invite.Active = false
	return nil
}

func (m *memoryStore) CreateUser(_ context.Context, user *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return err
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memoryStore) GetUser(_ context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return nil, err
	}
	user, ok := m.users[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *memoryStore) GetUserByEmail(_ context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (m *memoryStore) SetTopicProgress(_ context.Context, userID, topic string, ratio float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return entity.ErrNotFound
	}
	if user.Progress == nil {
		user.Progress = make(map[string]float64)
	}
	user.Progress[topic] = ratio
	return nil
}

func (m *memoryStore) SaveMessage(_ context.Context, msg *entity.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return err
	}
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *memoryStore) SetMessageReply(_ context.Context, messageID, reply string, at time.Time) (*entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == messageID {
			msg.Reply = reply
			msg.RepliedAt = &at
			msg.Read = true
			cp := *msg
			return &cp, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (m *memoryStore) SetMessageRead(_ context.Context, messageID string) (*entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == messageID {
			msg.Read = true
			cp := *msg
			return &cp, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (m *memoryStore) AdminMessages(_ context.Context, sinceID string) ([]*entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable(); err != nil {
		return nil, err
	}
	var out []*entity.Message
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if sinceID != "" && msg.ID <= sinceID {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryStore) UserMessages(_ context.Context, userID string) ([]*entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Message
	for _, msg := range m.messages {
		if msg.UserID == userID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTestCore(t *testing.T, db Storage) *Core {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := token.New("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	return New(db, auth.New(db, tokens), stream.New(log, 0), log, Config{InviteCodeLength: 12})
}

func seedInvite(db *memoryStore, code string, role entity.Role, maxUses int) {
	db.invites[code] = &entity.InviteCode{
		Code:      code,
		Role:      role,
		MaxUses:   maxUses,
		Active:    true,
		IssuedBy:  "admin-1",
		CreatedAt: time.Now().UTC(),
	}
}

func TestRegisterSingleUseRace(t *testing.T) {
	db := newMemoryStore()
	seedInvite(db, "WELCOME2024", entity.RoleUser, 1)
	c := newTestCore(t, db)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	tokensIssued := 0
	exhausted := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := &entity.RegisterRequest{
				Name:       fmt.Sprintf("user-%d", i),
				Language:   "en",
				InviteCode: "WELCOME2024",
			}
			_, signed, err := c.Register(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && signed != "":
				tokensIssued++
			case errors.Is(err, entity.ErrInviteExhausted):
				exhausted++
			default:
				t.Errorf("unexpected result: token=%q err=%v", signed, err)
			}
		}(i)
	}
	wg.Wait()

	if tokensIssued != 1 {
		t.Fatalf("expected exactly one token, got %d", tokensIssued)
	}
	if exhausted != n-1 {
		t.Fatalf("expected %d exhausted results, got %d", n-1, exhausted)
	}
	if len(db.users) != 1 {
		t.Fatalf("expected exactly one user, got %d", len(db.users))
	}
}

func TestRegisterMultiUseBound(t *testing.T) {
	db := newMemoryStore()
	seedInvite(db, "TEAM42", entity.RoleUser, 3)
	c := newTestCore(t, db)

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := &entity.RegisterRequest{
				Name:       fmt.Sprintf("user-%d", i),
				Language:   "en",
				InviteCode: "TEAM42",
			}
			if _, _, err := c.Register(context.Background(), req); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("expected exactly 3 successes for max_uses=3, got %d", succeeded)
	}
	if got := db.invites["TEAM42"].UsedCount; got != 3 {
		t.Fatalf("used count exceeded max uses: %d", got)
	}
}

func TestRegisterRoleFromInvite(t *testing.T) {
	db := newMemoryStore()
	seedInvite(db, "ADMINCODE101", entity.RoleAdmin, 1)
	c := newTestCore(t, db)

	user, signed, err := c.Register(context.Background(), &entity.RegisterRequest{
		Name:       "Root",
		Language:   "en",
		Country:    "Germany",
		InviteCode: "ADMINCODE101",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != entity.RoleAdmin {
		t.Fatalf("role not taken from invite grant: %s", user.Role)
	}
	if user.Country != "DE" {
		t.Fatalf("country not normalized: %q", user.Country)
	}
	if user.InviteCode != "ADMINCODE101" {
		t.Fatalf("user not bound to invite code: %q", user.InviteCode)
	}

	session, err := c.VerifyToken(signed)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if session.SubjectID != user.ID || session.Role != entity.RoleAdmin {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestVerifyInvite(t *testing.T) {
	db := newMemoryStore()
	seedInvite(db, "LIVECODE9000", entity.RoleUser, 1)

	expired := time.Now().Add(-time.Hour)
	db.invites["OLDCODE55555"] = &entity.InviteCode{
		Code: "OLDCODE55555", Role: entity.RoleUser, MaxUses: 1, Active: true, ExpiresAt: &expired,
	}
	db.invites["OFFCODE55555"] = &entity.InviteCode{
		Code: "OFFCODE55555", Role: entity.RoleUser, MaxUses: 1, Active: false,
	}
	c := newTestCore(t, db)

	valid, role, err := c.VerifyInvite(context.Background(), "LIVECODE9000")
	if err != nil || !valid || role != entity.RoleUser {
		t.Fatalf("expected valid user code, got valid=%v role=%s err=%v", valid, role, err)
	}

	for _, code := range []string{"OLDCODE55555", "OFFCODE55555", "NOSUCHCODE11"} {
		valid, _, err = c.VerifyInvite(context.Background(), code)
		if err != nil {
			t.Fatalf("VerifyInvite(%s): %v", code, err)
		}
		if valid {
			t.Fatalf("code %s should not verify", code)
		}
	}
}

func TestGenerateInvite(t *testing.T) {
	db := newMemoryStore()
	c := newTestCore(t, db)

	invite, err := c.GenerateInvite(context.Background(), entity.RoleUser, 5, time.Hour, "admin-1")
	if err != nil {
		t.Fatalf("GenerateInvite: %v", err)
	}
	if len(invite.Code) != 12 {
		t.Fatalf("expected 12-char code, got %q", invite.Code)
	}
	if invite.MaxUses != 5 || !invite.Active || invite.ExpiresAt == nil {
		t.Fatalf("unexpected invite: %+v", invite)
	}
	if _, ok := db.invites[invite.Code]; !ok {
		t.Fatal("invite not persisted")
	}

	if _, err = c.GenerateInvite(context.Background(), entity.RoleGuest, 1, 0, "admin-1"); !errors.Is(err, entity.ErrForbidden) {
		t.Fatalf("guest grant must be rejected, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	db := newMemoryStore()
	hash, err := auth.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	db.users["admin-1"] = &entity.User{
		ID: "admin-1", Name: "Admin", Email: "admin@example.org",
		PasswordHash: hash, Role: entity.RoleAdmin,
	}
	c := newTestCore(t, db)

	user, signed, err := c.Login(context.Background(), "admin@example.org", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != "admin-1" || signed == "" {
		t.Fatalf("unexpected login result: %+v %q", user, signed)
	}

	if _, _, err = c.Login(context.Background(), "admin@example.org", "wrong"); !errors.Is(err, entity.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for bad password, got %v", err)
	}
	if _, _, err = c.Login(context.Background(), "ghost@example.org", "hunter2hunter2"); !errors.Is(err, entity.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unknown email, got %v", err)
	}
}

func TestPostMessagePublishesAfterWrite(t *testing.T) {
	db := newMemoryStore()
	db.users["u1"] = &entity.User{ID: "u1", Name: "Alice", Role: entity.RoleUser}
	c := newTestCore(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adminCh := c.Subscribe(ctx, &entity.Session{SubjectID: "admin-1", Role: entity.RoleAdmin})
	ownerCh := c.Subscribe(ctx, &entity.Session{SubjectID: "u1", Role: entity.RoleUser})

	session := &entity.Session{SubjectID: "u1", Role: entity.RoleUser}
	msg, err := c.PostMessage(context.Background(), session, "hello there")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if msg.UserName != "Alice" {
		t.Fatalf("user name not denormalized: %+v", msg)
	}

	for _, ch := range []<-chan entity.Event{adminCh, ownerCh} {
		select {
		case evt := <-ch:
			if evt.Type != entity.EventNewMessage || evt.Message.ID != msg.ID {
				t.Fatalf("unexpected event: %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for new_message event")
		}
	}

	listed, err := c.AdminMessages(context.Background(), "")
	if err != nil {
		t.Fatalf("AdminMessages: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != msg.ID {
		t.Fatalf("message missing from admin listing: %+v", listed)
	}
}

func TestPostMessageGuestForbidden(t *testing.T) {
	db := newMemoryStore()
	c := newTestCore(t, db)

	session := &entity.Session{SubjectID: "g1", Role: entity.RoleGuest}
	if _, err := c.PostMessage(context.Background(), session, "hi"); !errors.Is(err, entity.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestReplyCausalOrder(t *testing.T) {
	db := newMemoryStore()
	db.users["u1"] = &entity.User{ID: "u1", Name: "Alice", Role: entity.RoleUser}
	db.users["u2"] = &entity.User{ID: "u2", Name: "Bob", Role: entity.RoleUser}
	c := newTestCore(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adminCh := c.Subscribe(ctx, &entity.Session{SubjectID: "admin-1", Role: entity.RoleAdmin})

	m1, err := c.PostMessage(context.Background(), &entity.Session{SubjectID: "u1", Role: entity.RoleUser}, "first")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	replied, err := c.ReplyMessage(context.Background(), m1.ID, "got it")
	if err != nil {
		t.Fatalf("ReplyMessage: %v", err)
	}
	if !replied.Read || replied.Reply != "got it" || replied.RepliedAt == nil {
		t.Fatalf("reply did not mark read atomically: %+v", replied)
	}
	if _, err = c.PostMessage(context.Background(), &entity.Session{SubjectID: "u2", Role: entity.RoleUser}, "later"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	var got []entity.Event
	for i := 0; i < 3; i++ {
		select {
		case evt := <-adminCh:
			got = append(got, evt)
		case <-time.After(time.Second):
			t.Fatalf("timeout after %d events", i)
		}
	}
	if got[0].Type != entity.EventNewMessage || got[0].Message.ID != m1.ID {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].Type != entity.EventMessageReply || got[1].Message.ID != m1.ID {
		t.Fatalf("message_reply must precede later messages, got %+v", got[1])
	}
	if got[2].Type != entity.EventNewMessage || got[2].Message.ID == m1.ID {
		t.Fatalf("unexpected third event: %+v", got[2])
	}
}

func TestReconnectReconcilesViaPull(t *testing.T) {
	db := newMemoryStore()
	db.users["u1"] = &entity.User{ID: "u1", Name: "Alice", Role: entity.RoleUser}
	c := newTestCore(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Subscribe(ctx, &entity.Session{SubjectID: "u1", Role: entity.RoleUser})
	cancel()
	for range ch {
		// drain until close
	}

	// Two messages arrive while the connection is down.
	userSession := &entity.Session{SubjectID: "u1", Role: entity.RoleUser}
	m1, err := c.PostMessage(context.Background(), userSession, "offline one")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	m2, err := c.PostMessage(context.Background(), userSession, "offline two")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	ch2 := c.Subscribe(ctx2, userSession)

	// No automatic replay on the fresh subscription.
	select {
	case evt := <-ch2:
		t.Fatalf("unexpected replayed event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}

	// The pull query returns both missed messages in creation order.
	listed, err := c.UserMessages(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserMessages: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != m1.ID || listed[1].ID != m2.ID {
		t.Fatalf("expected [%s %s] in order, got %+v", m1.ID, m2.ID, listed)
	}
}

func TestStoreRetryOnce(t *testing.T) {
	db := newMemoryStore()
	db.users["u1"] = &entity.User{ID: "u1", Name: "Alice", Role: entity.RoleUser}
	c := newTestCore(t, db)

	// A single outage is absorbed by the retry.
	db.failNext = 1
	if _, err := c.AdminMessages(context.Background(), ""); err != nil {
		t.Fatalf("expected retry to absorb one failure, got %v", err)
	}

	// Two consecutive failures surface as unavailability.
	db.failNext = 2
	if _, err := c.AdminMessages(context.Background(), ""); !errors.Is(err, entity.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCompleteTopic(t *testing.T) {
	db := newMemoryStore()
	db.users["u1"] = &entity.User{
		ID: "u1", Name: "Alice", Role: entity.RoleUser,
		AssignedTopics: []string{"intro"},
		Progress:       map[string]float64{"intro": 0.5},
	}
	c := newTestCore(t, db)

	session := &entity.Session{SubjectID: "u1", Role: entity.RoleUser}
	user, err := c.CompleteTopic(context.Background(), session, "intro")
	if err != nil {
		t.Fatalf("CompleteTopic: %v", err)
	}
	if user.Progress["intro"] != 1.0 {
		t.Fatalf("progress not completed: %v", user.Progress)
	}

	if _, err = c.CompleteTopic(context.Background(), session, "advanced"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("unassigned topic must be rejected, got %v", err)
	}
}
