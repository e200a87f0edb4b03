// Package bot implements the Telegram bridge for admin notifications.
//
// The bridge is outbound only: domain events and error-level log records
// are formatted and pushed to every admin who has a Telegram account
// linked. It never handles incoming commands.
//
// Thread safety: the cached admin id list is protected by sync.RWMutex;
// Refresh() acquires the full lock to rebuild it.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mentorhub/entity"
	"mentorhub/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// Database defines the storage operations the bridge depends on.
// Implemented by internal/database.
type Database interface {
	AdminsWithTelegram(ctx context.Context) ([]*entity.User, error)
}

// TgBot pushes notifications to admin Telegram accounts. The admin id
// list is cached in memory; Refresh reloads it from the database.
type TgBot struct {
	log      *slog.Logger
	api      *tgbotapi.Bot
	db       Database
	mu       sync.RWMutex
	adminIds []int64
}

func NewTgBot(apiKey string, db Database, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		log: log.With(sl.Module("tgbot")),
		db:  db,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

func (t *TgBot) Start() {
	t.Refresh()
}

// Refresh rebuilds the cached admin id list from the database.
func (t *TgBot) Refresh() {
	if t.db == nil {
		return
	}
	admins, err := t.db.AdminsWithTelegram(context.Background())
	if err != nil {
		t.log.Error("loading admins", sl.Err(err))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.adminIds = nil
	for _, admin := range admins {
		if admin.TelegramID != 0 {
			t.adminIds = append(t.adminIds, admin.TelegramID)
		}
	}
	t.log.With(slog.Int("admins", len(t.adminIds))).Debug("loaded admins")
}

func (t *TgBot) notifyAdmins(msg string) {
	t.mu.RLock()
	adminIds := make([]int64, len(t.adminIds))
	copy(adminIds, t.adminIds)
	t.mu.RUnlock()

	for _, id := range adminIds {
		t.plainResponse(id, msg)
	}
}
