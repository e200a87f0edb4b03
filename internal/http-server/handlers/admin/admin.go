// Package admin serves the admin-only console endpoints. Role checks are
// enforced by the authenticate.Admin middleware before any handler here
// runs.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"mentorhub/entity"
	"mentorhub/lib/api/cont"
	"mentorhub/lib/api/response"
	"mentorhub/lib/sl"
)

type Core interface {
	AdminMessages(ctx context.Context, sinceID string) ([]*entity.Message, error)
	ReplyMessage(ctx context.Context, messageID, reply string) (*entity.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) (*entity.Message, error)
	GenerateInvite(ctx context.Context, role entity.Role, maxUses int, expiresIn time.Duration, issuer string) (*entity.InviteCode, error)
	RevokeInvite(ctx context.Context, code string) error
}

// Messages lists every user message newest-first. The optional `since`
// query parameter narrows the result for incremental polling.
func Messages(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.admin"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		listed, err := handler.AdminMessages(r.Context(), r.URL.Query().Get("since"))
		if err != nil {
			logger.Error("list messages", sl.Err(err))
			render.Status(r, 503)
			render.JSON(w, r, response.Error("Service unavailable"))
			return
		}

		render.JSON(w, r, response.Ok(listed))
	}
}

func Reply(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.admin"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.ReplyRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(slog.String("message_id", req.MessageID))

		msg, err := handler.ReplyMessage(r.Context(), req.MessageID, req.Reply)
		if err != nil {
			respondStoreError(w, r, logger, "reply message", err)
			return
		}
		logger.Debug("reply stored")

		render.JSON(w, r, response.Ok(msg))
	}
}

func MarkRead(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.admin"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		messageID := chi.URLParam(r, "id")
		msg, err := handler.MarkMessageRead(r.Context(), messageID)
		if err != nil {
			respondStoreError(w, r, logger, "mark read", err)
			return
		}

		render.JSON(w, r, response.Ok(msg))
	}
}

func GenerateInvite(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.admin"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.GenerateInviteRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		session := cont.GetSession(r.Context())
		expiresIn := time.Duration(req.ExpiresInHrs) * time.Hour
		invite, err := handler.GenerateInvite(r.Context(), entity.ParseRole(req.Kind), req.MaxUses, expiresIn, session.SubjectID)
		if err != nil {
			logger.Error("generate invite", sl.Err(err))
			if errors.Is(err, entity.ErrUnavailable) {
				render.Status(r, 503)
				render.JSON(w, r, response.Error("Service unavailable"))
				return
			}
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Generate invite: %v", err)))
			return
		}
		logger.Info("invite generated", sl.Secret("code", invite.Code))

		render.Status(r, 201)
		render.JSON(w, r, response.Ok(invite))
	}
}

func RevokeInvite(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.admin"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		code := chi.URLParam(r, "code")
		if err := handler.RevokeInvite(r.Context(), code); err != nil {
			if errors.Is(err, entity.ErrInviteNotFound) {
				render.Status(r, 404)
				render.JSON(w, r, response.Error("Invite code not found"))
				return
			}
			logger.Error("revoke invite", sl.Err(err))
			render.Status(r, 503)
			render.JSON(w, r, response.Error("Service unavailable"))
			return
		}
		logger.Info("invite revoked", sl.Secret("code", code))

		render.JSON(w, r, response.Ok(nil))
	}
}

func respondStoreError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		render.Status(r, 404)
		render.JSON(w, r, response.Error("Message not found"))
	case errors.Is(err, entity.ErrUnavailable):
		logger.Error(op, sl.Err(err))
		render.Status(r, 503)
		render.JSON(w, r, response.Error("Service unavailable"))
	default:
		logger.Error(op, sl.Err(err))
		render.Status(r, 400)
		render.JSON(w, r, response.Error(fmt.Sprintf("%s: %v", op, err)))
	}
}
