// Package messages serves the authenticated message channel: posting,
// the personal history pull and the realtime event stream.
package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"mentorhub/entity"
	"mentorhub/lib/api/cont"
	"mentorhub/lib/api/response"
	"mentorhub/lib/sl"
)

type Core interface {
	PostMessage(ctx context.Context, session *entity.Session, content string) (*entity.Message, error)
	UserMessages(ctx context.Context, userID string) ([]*entity.Message, error)
	Subscribe(ctx context.Context, session *entity.Session) <-chan entity.Event
}

func Post(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.messages"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.PostMessageRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		session := cont.GetSession(r.Context())
		msg, err := handler.PostMessage(r.Context(), session, req.Content)
		if err != nil {
			switch {
			case errors.Is(err, entity.ErrForbidden):
				render.Status(r, 403)
				render.JSON(w, r, response.Error("Not allowed"))
			case errors.Is(err, entity.ErrUnavailable):
				logger.Error("post message", sl.Err(err))
				render.Status(r, 503)
				render.JSON(w, r, response.Error("Service unavailable"))
			default:
				logger.Error("post message", sl.Err(err))
				render.Status(r, 400)
				render.JSON(w, r, response.Error(fmt.Sprintf("Post message: %v", err)))
			}
			return
		}
		logger.Debug("message posted", slog.String("message_id", msg.ID))

		render.Status(r, 201)
		render.JSON(w, r, response.Ok(msg))
	}
}

// History returns the caller's own messages in creation order. This is the
// pull query a reconnecting client reconciles with, since the stream does
// not replay missed events.
func History(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.messages"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		session := cont.GetSession(r.Context())
		listed, err := handler.UserMessages(r.Context(), session.SubjectID)
		if err != nil {
			logger.Error("list messages", sl.Err(err))
			render.Status(r, 503)
			render.JSON(w, r, response.Error("Service unavailable"))
			return
		}

		render.JSON(w, r, response.Ok(listed))
	}
}

// Events streams realtime message events over Server-Sent Events. The
// session was already authenticated by the middleware; subscription and
// therefore any delivery happens only after that.
func Events(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.messages"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		flusher, ok := w.(http.Flusher)
		if !ok {
			render.Status(r, 500)
			render.JSON(w, r, response.Error("Streaming unsupported"))
			return
		}

		session := cont.GetSession(r.Context())
		logger = logger.With(
			slog.String("subject", session.SubjectID),
			slog.String("role", string(session.Role)),
		)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		ch := handler.Subscribe(ctx, session)

		// Initial comment establishes the stream on the client side.
		_, _ = w.Write([]byte(": stream started\n\n"))
		flusher.Flush()
		logger.Debug("stream opened")

		for event := range ch {
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
				// Client went away; the deferred cancel deregisters us.
				break
			}
			flusher.Flush()
		}
		logger.Debug("stream closed")
	}
}
