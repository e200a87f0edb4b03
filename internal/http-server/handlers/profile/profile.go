package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"mentorhub/entity"
	"mentorhub/lib/api/cont"
	"mentorhub/lib/api/response"
	"mentorhub/lib/sl"
)

type Core interface {
	Profile(ctx context.Context, userID string) (*entity.User, error)
	CompleteTopic(ctx context.Context, session *entity.Session, topicID string) (*entity.User, error)
}

func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.profile"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		session := cont.GetSession(r.Context())
		user, err := handler.Profile(r.Context(), session.SubjectID)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				render.Status(r, 404)
				render.JSON(w, r, response.Error("Profile not found"))
				return
			}
			logger.Error("load profile", sl.Err(err))
			render.Status(r, 503)
			render.JSON(w, r, response.Error("Service unavailable"))
			return
		}

		render.JSON(w, r, response.Ok(user))
	}
}

func CompleteTopic(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.profile"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		session := cont.GetSession(r.Context())
		topicID := chi.URLParam(r, "id")
		logger = logger.With(slog.String("topic", topicID))

		user, err := handler.CompleteTopic(r.Context(), session, topicID)
		if err != nil {
			switch {
			case errors.Is(err, entity.ErrNotFound):
				render.Status(r, 404)
				render.JSON(w, r, response.Error("Topic is not assigned"))
			case errors.Is(err, entity.ErrUnavailable):
				logger.Error("complete topic", sl.Err(err))
				render.Status(r, 503)
				render.JSON(w, r, response.Error("Service unavailable"))
			default:
				logger.Error("complete topic", sl.Err(err))
				render.Status(r, 400)
				render.JSON(w, r, response.Error("Complete topic failed"))
			}
			return
		}
		logger.Info("topic completed")

		render.JSON(w, r, response.Ok(user))
	}
}
