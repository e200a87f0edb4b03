// Package account serves the public endpoints of the onboarding flow:
// invite verification, registration and login.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"mentorhub/entity"
	"mentorhub/lib/api/response"
	"mentorhub/lib/sl"
)

type Core interface {
	VerifyInvite(ctx context.Context, code string) (bool, entity.Role, error)
	Register(ctx context.Context, req *entity.RegisterRequest) (*entity.User, string, error)
	Login(ctx context.Context, email, password string) (*entity.User, string, error)
}

// AuthResult is the payload returned by register and login.
type AuthResult struct {
	Token string       `json:"token"`
	User  *entity.User `json:"user"`
}

type inviteStatus struct {
	Valid bool   `json:"valid"`
	Type  string `json:"type,omitempty"`
}

func VerifyInvite(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.account"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.VerifyInviteRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		valid, role, err := handler.VerifyInvite(r.Context(), req.Code)
		if err != nil {
			logger.Error("verify invite", sl.Err(err))
			render.Status(r, 503)
			render.JSON(w, r, response.Error("Service unavailable"))
			return
		}

		status := inviteStatus{Valid: valid}
		if valid {
			status.Type = string(role)
		}
		render.JSON(w, r, response.Ok(status))
	}
}

func Register(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.account"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.RegisterRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(sl.Secret("invite_code", req.InviteCode))

		user, token, err := handler.Register(r.Context(), &req)
		if err != nil {
			logger.Error("register", sl.Err(err))
			render.Status(r, registerStatus(err))
			render.JSON(w, r, response.Error(registerMessage(err)))
			return
		}
		logger.Info("user registered", slog.String("user_id", user.ID))

		render.Status(r, 201)
		render.JSON(w, r, response.Ok(AuthResult{Token: token, User: user}))
	}
}

func Login(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.account"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.LoginRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		user, token, err := handler.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, entity.ErrForbidden) {
				logger.Warn("login rejected", slog.String("email", req.Email))
				render.Status(r, 401)
				render.JSON(w, r, response.Error("Invalid credentials"))
				return
			}
			logger.Error("login", sl.Err(err))
			render.Status(r, 503)
			render.JSON(w, r, response.Error("Service unavailable"))
			return
		}
		logger.Info("login", slog.String("user_id", user.ID))

		render.JSON(w, r, response.Ok(AuthResult{Token: token, User: user}))
	}
}

func registerStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrUnavailable):
		return 503
	default:
		return 400
	}
}

func registerMessage(err error) string {
	switch {
	case errors.Is(err, entity.ErrInviteNotFound):
		return "Invite code not found"
	case errors.Is(err, entity.ErrInviteInactive):
		return "Invite code is no longer active"
	case errors.Is(err, entity.ErrInviteExpired):
		return "Invite code has expired"
	case errors.Is(err, entity.ErrInviteExhausted):
		return "Invite code has already been used"
	case errors.Is(err, entity.ErrUnavailable):
		return "Service unavailable"
	default:
		return fmt.Sprintf("Registration failed: %v", err)
	}
}
