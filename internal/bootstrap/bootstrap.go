// Package bootstrap assembles the time-off engine from configuration. It is
// shared by the API server and the reply-check worker.
package bootstrap

import (
	"fmt"

	"github.com/edvin/timeoff/internal/api/handler"
	"github.com/edvin/timeoff/internal/config"
	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/mail"
	"github.com/edvin/timeoff/internal/mail/gmail"
	"github.com/edvin/timeoff/internal/mail/jmap"
	"github.com/edvin/timeoff/internal/store"
)

// Engine is the wired engine for one process.
type Engine struct {
	Store    *store.Store
	Services *core.Services
	// Mailbox is set when the configured transport needs a per-user OAuth
	// grant.
	Mailbox handler.MailboxConnector
}

// Settings maps the configuration onto the engine's tunables.
func Settings(cfg *config.Config, templates core.Templates) core.Settings {
	return core.Settings{
		SchedulingEmail: cfg.SchedulingEmail,
		MinNoticeDays:   cfg.MinNoticeDays,
		MaxAdvanceDays:  cfg.MaxAdvanceDays,
		MaxGroupDays:    cfg.MaxGroupDays,
		SendTimeout:     cfg.MailSendTimeout,
		Templates:       templates,
	}
}

// NewEngine loads the email templates, selects the mail transport named by
// cfg.MailTransport and builds the services on top of st.
func NewEngine(cfg *config.Config, st *store.Store) (*Engine, error) {
	templates, err := core.LoadTemplates(cfg.TemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	settings := Settings(cfg, templates)

	e := &Engine{Store: st}
	var transport mail.Transport
	switch cfg.MailTransport {
	case config.TransportJMAP:
		transport = jmap.NewClient(cfg.JMAPBaseURL, cfg.JMAPAdminToken, core.NewUserService(st, settings))
	case config.TransportGmail:
		client := gmail.NewClient(gmail.NewConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL), st)
		transport = client
		e.Mailbox = client
	case config.TransportNone, "":
		transport = mail.Disabled{}
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
	}

	e.Services = core.NewServices(st, transport, core.AuthSettings{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		TokenTTL: cfg.JWTTokenTTL,
	}, settings)
	return e, nil
}
