package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/timeoff/internal/api/handler"
	mw "github.com/edvin/timeoff/internal/api/middleware"
	"github.com/edvin/timeoff/internal/config"
	"github.com/edvin/timeoff/internal/core"
)

// Pinger reports database reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	db       Pinger
	cfg      *config.Config
	mailbox  handler.MailboxConnector
}

// NewServer builds the HTTP API. mailbox is nil unless the mail transport
// needs users to connect their own mailbox.
func NewServer(logger zerolog.Logger, db Pinger, services *core.Services, cfg *config.Config, mailbox handler.MailboxConnector) (*Server, error) {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		db:       db,
		cfg:      cfg,
		mailbox:  mailbox,
	}

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
	if len(s.cfg.CORSOrigins) > 0 {
		s.router.Use(mw.CORS(s.cfg.CORSOrigins))
	}
}

func (s *Server) setupRoutes() error {
	checkLimit, err := mw.RateLimit(s.cfg.RateLimitCheckReplies)
	if err != nil {
		return err
	}
	resendLimit, err := mw.RateLimit(s.cfg.RateLimitResend)
	if err != nil {
		return err
	}

	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		auth := handler.NewAuth(s.services.Auth)
		r.Post("/auth/login", auth.Login)

		var mailbox *handler.Mailbox
		if s.mailbox != nil {
			mailbox = handler.NewMailbox(s.mailbox, s.services.Auth)
			r.Get("/mailbox/callback", mailbox.Callback)
		}

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(s.services.Auth))

			// Current user
			me := handler.NewMe(s.services.User)
			r.Get("/me", me.Get)
			r.Put("/me/preferences", me.UpdatePreferences)
			if mailbox != nil {
				r.Get("/mailbox/connect", mailbox.Connect)
			}

			// Requests
			timeOff := handler.NewTimeOff(s.services.Request, s.services.Dispatch)
			r.Get("/requests", timeOff.List)
			r.Post("/requests", timeOff.Create)
			r.Get("/requests/{id}", timeOff.Get)
			r.Patch("/requests/{id}", timeOff.Update)
			r.Delete("/requests/{id}", timeOff.Delete)

			// Status
			status := handler.NewStatus(s.services.Status)
			r.Put("/requests/{id}/status", status.Set)

			// Email delivery
			delivery := handler.NewDelivery(s.services.Dispatch)
			r.With(resendLimit).Post("/requests/{id}/resend", delivery.Resend)
			r.Post("/requests/{id}/confirm-sent", delivery.ConfirmSent)
			r.Post("/requests/{id}/reset-delivery", delivery.ResetDeliveryState)
			r.Get("/requests/{id}/email-content", delivery.EmailContent)
			r.Get("/requests/{id}/email-status", delivery.EmailStatus)

			// Groups
			group := handler.NewGroup(s.services.Group)
			r.Get("/groups/{id}", group.Get)
			r.Delete("/groups/{id}", group.Delete)

			// Replies
			reply := handler.NewReply(s.services.Reply)
			r.Get("/requests/{id}/conversation", reply.Conversation)
			r.With(checkLimit).Post("/replies/check", reply.Check)
			r.Get("/replies", reply.List)
			r.Get("/replies/{id}", reply.Get)
			r.Get("/replies/{id}/approval-view", reply.ApprovalView)
			r.Put("/replies/{id}/process", reply.Process)
			r.Put("/replies/{id}/process-individual", reply.ProcessIndividual)
			r.Post("/replies/{id}/respond", reply.Respond)
		})
	})

	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
