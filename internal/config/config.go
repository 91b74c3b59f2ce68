package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Mail transports selectable with MAIL_TRANSPORT.
const (
	TransportNone  = "none"
	TransportJMAP  = "jmap"
	TransportGmail = "gmail"
)

type Config struct {
	DatabaseURL    string `env:"DATABASE_URL"`
	HTTPListenAddr string `env:"HTTP_LISTEN_ADDR" envDefault:":8080"`
	MetricsAddr    string `env:"METRICS_ADDR"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName    string `env:"SERVICE_NAME" envDefault:"timeoff-api"`

	JWTSecret   string        `env:"JWT_SECRET"`
	JWTIssuer   string        `env:"JWT_ISSUER" envDefault:"timeoff"`
	JWTTokenTTL time.Duration `env:"JWT_TOKEN_TTL" envDefault:"24h"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:","`

	SchedulingEmail string        `env:"SCHEDULING_EMAIL"`
	MailTransport   string        `env:"MAIL_TRANSPORT" envDefault:"none"`
	MailSendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT" envDefault:"15s"`
	TemplatesFile   string        `env:"TEMPLATES_FILE"`

	JMAPBaseURL    string `env:"JMAP_BASE_URL"`
	JMAPAdminToken string `env:"JMAP_ADMIN_TOKEN"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	MinNoticeDays  int `env:"ADVANCE_NOTICE_MIN_DAYS" envDefault:"1"`
	MaxAdvanceDays int `env:"ADVANCE_NOTICE_MAX_DAYS" envDefault:"120"`
	MaxGroupDays   int `env:"MAX_GROUP_DAYS" envDefault:"4"`

	// RateLimitCheckReplies is a ulule/limiter formatted rate, e.g. "10-M".
	RateLimitCheckReplies string `env:"RATE_LIMIT_CHECK_REPLIES" envDefault:"10-M"`
	// RateLimitResend bounds automatic resends per user, in the same format.
	RateLimitResend string `env:"RATE_LIMIT_RESEND" envDefault:"5-M"`

	TemporalAddress       string `env:"TEMPORAL_ADDRESS" envDefault:"localhost:7233"`
	TemporalTLSCert       string `env:"TEMPORAL_TLS_CERT"`
	TemporalTLSKey        string `env:"TEMPORAL_TLS_KEY"`
	TemporalTLSCACert     string `env:"TEMPORAL_TLS_CA_CERT"`
	TemporalTLSServerName string `env:"TEMPORAL_TLS_SERVER_NAME"`
	ReplyCheckCron        string `env:"REPLY_CHECK_CRON" envDefault:"*/15 * * * *"`
}

// Load reads the configuration from the environment. Values in a .env file
// in the working directory are used for variables that are not set.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.MailTransport = strings.ToLower(cfg.MailTransport)
	return cfg, nil
}

// Validate checks that the fields needed by component ("api", "worker" or
// "migrate") are present.
func (c *Config) Validate(component string) error {
	var errs []error
	require := func(value, name string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	require(c.DatabaseURL, "DATABASE_URL")

	switch component {
	case "api":
		require(c.HTTPListenAddr, "HTTP_LISTEN_ADDR")
		require(c.SchedulingEmail, "SCHEDULING_EMAIL")
		if len(c.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
		}
		errs = append(errs, c.validateEngine()...)
	case "worker":
		require(c.TemporalAddress, "TEMPORAL_ADDRESS")
		require(c.ReplyCheckCron, "REPLY_CHECK_CRON")
		errs = append(errs, c.validateEngine()...)
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		errs = append(errs, errors.New("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateEngine() []error {
	var errs []error
	switch c.MailTransport {
	case TransportNone:
	case TransportJMAP:
		if c.JMAPBaseURL == "" || c.JMAPAdminToken == "" {
			errs = append(errs, errors.New("JMAP_BASE_URL and JMAP_ADMIN_TOKEN are required for the jmap transport"))
		}
	case TransportGmail:
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for the gmail transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_TRANSPORT must be one of none, jmap, gmail, got %q", c.MailTransport))
	}

	if c.MinNoticeDays < 0 {
		errs = append(errs, errors.New("ADVANCE_NOTICE_MIN_DAYS must not be negative"))
	}
	if c.MaxAdvanceDays < c.MinNoticeDays {
		errs = append(errs, errors.New("ADVANCE_NOTICE_MAX_DAYS must not be less than ADVANCE_NOTICE_MIN_DAYS"))
	}
	if c.MaxGroupDays < 2 {
		errs = append(errs, errors.New("MAX_GROUP_DAYS must be at least 2"))
	}
	return errs
}
