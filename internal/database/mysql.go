package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"mentorhub/entity"
	"mentorhub/internal/config"
)

type MySql struct {
	db *sql.DB
}

func NewSQLClient(conf *config.Config) (*MySql, error) {
	if !conf.MySQL.Enabled {
		return nil, fmt.Errorf("mysql store is disabled in configuration")
	}
	connectionURI := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		conf.MySQL.UserName, conf.MySQL.Password, conf.MySQL.HostName, conf.MySQL.Port, conf.MySQL.Database)
	db, err := sql.Open("mysql", connectionURI)
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// try to ping three times with a 30-second interval; wait for a database to start
	for i := 0; i < 3; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		if i == 2 {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		time.Sleep(30 * time.Second)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &MySql{db: db}
	if err = sdb.ensureSchema(); err != nil {
		return nil, err
	}
	return sdb, nil
}

func (s *MySql) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS invite_codes (
			code VARCHAR(64) NOT NULL PRIMARY KEY,
			role VARCHAR(16) NOT NULL,
			max_uses INT NOT NULL DEFAULT 1,
			used_count INT NOT NULL DEFAULT 0,
			expires_at DATETIME NULL,
			active TINYINT(1) NOT NULL DEFAULT 1,
			issued_by VARCHAR(64) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL DEFAULT '',
			password_hash VARCHAR(255) NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL,
			language VARCHAR(16) NOT NULL DEFAULT '',
			country VARCHAR(2) NOT NULL DEFAULT '',
			external_id VARCHAR(255) NOT NULL DEFAULT '',
			telegram_id BIGINT NOT NULL DEFAULT 0,
			invite_code VARCHAR(64) NOT NULL DEFAULT '',
			registered_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_topics (
			user_id VARCHAR(64) NOT NULL,
			topic VARCHAR(64) NOT NULL,
			progress DOUBLE NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, topic)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(32) NOT NULL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			user_name VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME(3) NOT NULL,
			is_read TINYINT(1) NOT NULL DEFAULT 0,
			reply TEXT NULL,
			replied_at DATETIME(3) NULL,
			INDEX idx_messages_user (user_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func sqlUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, entity.ErrUnavailable, err)
}

func (s *MySql) CreateInviteCode(ctx context.Context, code *entity.InviteCode) error {
	query := `INSERT INTO invite_codes (code, role, max_uses, used_count, expires_at, active, issued_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var expires sql.NullTime
	if code.ExpiresAt != nil {
		expires = sql.NullTime{Time: *code.ExpiresAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		code.Code, string(code.Role), code.MaxUses, code.UsedCount, expires, code.Active, code.IssuedBy, code.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return fmt.Errorf("create invite code: %w", entity.ErrConflict)
		}
		return sqlUnavailable("create invite code", err)
	}
	return nil
}

func (s *MySql) GetInviteCode(ctx context.Context, code string) (*entity.InviteCode, error) {
	query := `SELECT code, role, max_uses, used_count, expires_at, active, issued_by, created_at
		FROM invite_codes WHERE code = ?`
	invite, err := s.scanInvite(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrInviteNotFound
		}
		return nil, sqlUnavailable("get invite code", err)
	}
	return invite, nil
}

// ConsumeInviteCode runs the check-and-increment as one conditional UPDATE.
// MySQL serializes the row write, so of N concurrent consumptions of a code
// with one remaining use exactly one sees RowsAffected == 1.
func (s *MySql) ConsumeInviteCode(ctx context.Context, code string) (*entity.InviteCode, error) {
	now := time.Now().UTC()
	query := `UPDATE invite_codes
		SET used_count = used_count + 1
		WHERE code = ? AND active = 1 AND used_count < max_uses
		  AND (expires_at IS NULL OR expires_at > ?)`
	result, err := s.db.ExecContext(ctx, query, code, now)
	if err != nil {
		return nil, sqlUnavailable("consume invite code", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, sqlUnavailable("consume invite code", err)
	}
	if affected == 1 {
		return s.GetInviteCode(ctx, code)
	}

	// Nothing matched; read the row back to report why.
	invite, err := s.GetInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return nil, classifyInvite(invite, now)
}

func (s *MySql) DeactivateInviteCode(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE invite_codes SET active = 0 WHERE code = ?`, code)
	if err != nil {
		return sqlUnavailable("deactivate invite code", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return sqlUnavailable("deactivate invite code", err)
	}
	if affected == 0 {
		return entity.ErrInviteNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *MySql) scanInvite(row rowScanner) (*entity.InviteCode, error) {
	var invite entity.InviteCode
	var role string
	var expires sql.NullTime
	err := row.Scan(&invite.Code, &role, &invite.MaxUses, &invite.UsedCount,
		&expires, &invite.Active, &invite.IssuedBy, &invite.CreatedAt)
	if err != nil {
		return nil, err
	}
	invite.Role = entity.ParseRole(role)
	if expires.Valid {
		t := expires.Time
		invite.ExpiresAt = &t
	}
	return &invite, nil
}

func (s *MySql) CreateUser(ctx context.Context, user *entity.User) error {
	query := `INSERT INTO users (id, name, email, password_hash, role, language, country, external_id, telegram_id, invite_code, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role),
		user.Language, user.Country, user.ExternalID, user.TelegramID, user.InviteCode, user.RegisteredAt)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return fmt.Errorf("create user: %w", entity.ErrConflict)
		}
		return sqlUnavailable("create user", err)
	}
	for _, topic := range user.AssignedTopics {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_topics (user_id, topic, progress) VALUES (?, ?, 0)
			 ON DUPLICATE KEY UPDATE topic = topic`,
			user.ID, topic)
		if err != nil {
			return sqlUnavailable("assign topic", err)
		}
	}
	return nil
}

func (s *MySql) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return s.findUser(ctx, `WHERE id = ?`, id)
}

func (s *MySql) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	return s.findUser(ctx, `WHERE email = ?`, email)
}

func (s *MySql) findUser(ctx context.Context, where string, arg any) (*entity.User, error) {
	query := `SELECT id, name, email, password_hash, role, language, country, external_id, telegram_id, invite_code, registered_at
		FROM users ` + where
	var user entity.User
	var role string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role,
		&user.Language, &user.Country, &user.ExternalID, &user.TelegramID, &user.InviteCode, &user.RegisteredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, sqlUnavailable("get user", err)
	}
	user.Role = entity.ParseRole(role)

	rows, err := s.db.QueryContext(ctx, `SELECT topic, progress FROM user_topics WHERE user_id = ?`, user.ID)
	if err != nil {
		return nil, sqlUnavailable("get user topics", err)
	}
	defer rows.Close()

	user.Progress = make(map[string]float64)
	for rows.Next() {
		var topic string
		var progress float64
		if err = rows.Scan(&topic, &progress); err != nil {
			return nil, sqlUnavailable("scan user topic", err)
		}
		user.AssignedTopics = append(user.AssignedTopics, topic)
		user.Progress[topic] = progress
	}
	if err = rows.Err(); err != nil {
		return nil, sqlUnavailable("iterate user topics", err)
	}
	return &user, nil
}

func (s *MySql) SetTopicProgress(ctx context.Context, userID, topic string, ratio float64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE user_topics SET progress = ? WHERE user_id = ? AND topic = ?`,
		ratio, userID, topic)
	if err != nil {
		return sqlUnavailable("set topic progress", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return sqlUnavailable("set topic progress", err)
	}
	if affected == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (s *MySql) AdminsWithTelegram(ctx context.Context) ([]*entity.User, error) {
	query := `SELECT id, name, telegram_id FROM users WHERE role = ? AND telegram_id > 0`
	rows, err := s.db.QueryContext(ctx, query, string(entity.RoleAdmin))
	if err != nil {
		return nil, sqlUnavailable("list admins", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user := entity.User{Role: entity.RoleAdmin}
		if err = rows.Scan(&user.ID, &user.Name, &user.TelegramID); err != nil {
			return nil, sqlUnavailable("scan admin", err)
		}
		users = append(users, &user)
	}
	if err = rows.Err(); err != nil {
		return nil, sqlUnavailable("iterate admins", err)
	}
	return users, nil
}

func (s *MySql) SaveMessage(ctx context.Context, msg *entity.Message) error {
	query := `INSERT INTO messages (id, user_id, user_name, content, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.UserID, msg.UserName, msg.Content, msg.CreatedAt, msg.Read)
	if err != nil {
		return sqlUnavailable("save message", err)
	}
	return nil
}

// SetMessageReply stores the reply and marks the message read in one update.
func (s *MySql) SetMessageReply(ctx context.Context, messageID, reply string, at time.Time) (*entity.Message, error) {
	query := `UPDATE messages SET reply = ?, replied_at = ?, is_read = 1 WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, reply, at, messageID)
	if err != nil {
		return nil, sqlUnavailable("reply message", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, sqlUnavailable("reply message", err)
	}
	if affected == 0 {
		return nil, entity.ErrNotFound
	}
	return s.getMessage(ctx, messageID)
}

func (s *MySql) SetMessageRead(ctx context.Context, messageID string) (*entity.Message, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`, messageID)
	if err != nil {
		return nil, sqlUnavailable("mark message read", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, sqlUnavailable("mark message read", err)
	}
	if affected == 0 {
		return nil, entity.ErrNotFound
	}
	return s.getMessage(ctx, messageID)
}

func (s *MySql) getMessage(ctx context.Context, messageID string) (*entity.Message, error) {
	query := `SELECT id, user_id, user_name, content, created_at, is_read, reply, replied_at
		FROM messages WHERE id = ?`
	msg, err := s.scanMessage(s.db.QueryRowContext(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, sqlUnavailable("get message", err)
	}
	return msg, nil
}

func (s *MySql) AdminMessages(ctx context.Context, sinceID string) ([]*entity.Message, error) {
	query := `SELECT id, user_id, user_name, content, created_at, is_read, reply, replied_at
		FROM messages ORDER BY id DESC`
	args := []any{}
	if sinceID != "" {
		query = `SELECT id, user_id, user_name, content, created_at, is_read, reply, replied_at
			FROM messages WHERE id > ? ORDER BY id DESC`
		args = append(args, sinceID)
	}
	return s.listMessages(ctx, query, args...)
}

func (s *MySql) UserMessages(ctx context.Context, userID string) ([]*entity.Message, error) {
	query := `SELECT id, user_id, user_name, content, created_at, is_read, reply, replied_at
		FROM messages WHERE user_id = ? ORDER BY id ASC`
	return s.listMessages(ctx, query, userID)
}

func (s *MySql) listMessages(ctx context.Context, query string, args ...any) ([]*entity.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqlUnavailable("list messages", err)
	}
	defer rows.Close()

	var messages []*entity.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, sqlUnavailable("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, sqlUnavailable("iterate messages", err)
	}
	return messages, nil
}

func (s *MySql) scanMessage(row rowScanner) (*entity.Message, error) {
	var msg entity.Message
	var reply sql.NullString
	var repliedAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.UserID, &msg.UserName, &msg.Content,
		&msg.CreatedAt, &msg.Read, &reply, &repliedAt)
	if err != nil {
		return nil, err
	}
	if reply.Valid {
		msg.Reply = reply.String
	}
	if repliedAt.Valid {
		t := repliedAt.Time
		msg.RepliedAt = &t
	}
	return &msg, nil
}
