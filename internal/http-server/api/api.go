package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"mentorhub/internal/config"
	"mentorhub/internal/http-server/handlers/account"
	"mentorhub/internal/http-server/handlers/admin"
	"mentorhub/internal/http-server/handlers/errors"
	"mentorhub/internal/http-server/handlers/messages"
	"mentorhub/internal/http-server/handlers/profile"
	"mentorhub/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"mentorhub/internal/http-server/middleware/authenticate"
	"mentorhub/internal/http-server/middleware/timeout"
	"mentorhub/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Verifier
	account.Core
	messages.Core
	profile.Core
	admin.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Instrument)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Handle("/metrics", metrics.Handler())

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Route("/auth", func(auth chi.Router) {
			auth.Use(timeout.Timeout(5))
			auth.Post("/verify-invite", account.VerifyInvite(log, handler))
			auth.Post("/register", account.Register(log, handler))
			auth.Post("/login", account.Login(log, handler))
		})
		rootApi.Group(func(authorized chi.Router) {
			authorized.Use(authenticate.New(log, handler))
			// the events stream stays open indefinitely, so the
			// request timeout applies to everything except it
			authorized.Group(func(timed chi.Router) {
				timed.Use(timeout.Timeout(5))
				timed.Get("/profile", profile.Get(log, handler))
				timed.Post("/topics/{id}/complete", profile.CompleteTopic(log, handler))
				timed.Post("/messages", messages.Post(log, handler))
				timed.Get("/messages", messages.History(log, handler))
				timed.Route("/admin", func(adm chi.Router) {
					adm.Use(authenticate.Admin(log))
					adm.Get("/messages", admin.Messages(log, handler))
					adm.Post("/reply", admin.Reply(log, handler))
					adm.Post("/messages/{id}/read", admin.MarkRead(log, handler))
					adm.Post("/generate-invite", admin.GenerateInvite(log, handler))
					adm.Delete("/invites/{code}", admin.RevokeInvite(log, handler))
				})
			})
			authorized.Get("/events", messages.Events(log, handler))
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:     router,
		ErrorLog:    httpLog,
		ReadTimeout: 5 * time.Second,
		// no write timeout: the events stream holds its response open
		IdleTimeout: 60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
