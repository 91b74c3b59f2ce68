package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/timeoff/internal/mail"
	"github.com/edvin/timeoff/internal/metrics"
	"github.com/edvin/timeoff/internal/model"
)

const emailDateLayout = "02/01/2006"

var (
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
)

// DispatchService delivers request emails: it sends them for automatic-mode
// requests and freezes the content for manual-mode ones.
type DispatchService struct {
	repo      Repository
	transport mail.Transport
	settings  Settings
}

func NewDispatchService(repo Repository, transport mail.Transport, settings Settings) *DispatchService {
	return &DispatchService{repo: repo, transport: transport, settings: settings}
}

// DeliveryResult reports the delivery state of a request after an operation,
// and how many rows of its group were written.
type DeliveryResult struct {
	RequestID    string              `json:"request_id"`
	EmailMode    model.EmailMode     `json:"email_mode"`
	Sent         bool                `json:"sent"`
	Failed       bool                `json:"failed"`
	Error        *string             `json:"error,omitempty"`
	ThreadID     *string             `json:"thread_id,omitempty"`
	Confirmed    bool                `json:"confirmed"`
	Content      *model.EmailContent `json:"content,omitempty"`
	UpdatedCount int                 `json:"updated_count"`
	IsGroup      bool                `json:"is_group"`
	GroupID      *string             `json:"group_id"`
}

func newDeliveryResult(r *model.Request, sc *scope, updated int) *DeliveryResult {
	res := &DeliveryResult{
		RequestID:    r.ID,
		EmailMode:    r.EmailMode,
		UpdatedCount: updated,
		IsGroup:      sc.group != nil,
		GroupID:      sc.groupID(),
	}
	if a := r.Automatic; a != nil {
		res.Sent = a.Sent
		res.Failed = a.Failed
		res.Error = a.Error
		res.ThreadID = a.ThreadID
	}
	if m := r.Manual; m != nil {
		res.Confirmed = m.Confirmed
		res.Content = m.Content
	}
	return res
}

// Dispatch performs the first delivery of a new request: the automatic send,
// or freezing the manual content. A failed send is recorded on the rows and
// reported in the result, never returned as an error.
func (s *DispatchService) Dispatch(ctx context.Context, requestID, userID string) (*DeliveryResult, error) {
	r, err := getOwned(ctx, s.repo, requestID, userID)
	if err != nil {
		return nil, err
	}
	if r.EmailMode == model.EmailModeAutomatic {
		if r.EmailDispatched() {
			return nil, fmt.Errorf("%w: email for request %s was already sent", ErrPrecondition, requestID)
		}
		return s.sendAutomatic(ctx, requestID, userID)
	}
	return s.PrepareManual(ctx, requestID, userID)
}

// Resend runs the automatic send again for the whole group. A request that
// already has a thread is sent into it.
func (s *DispatchService) Resend(ctx context.Context, requestID, userID string) (*DeliveryResult, error) {
	r, err := getOwned(ctx, s.repo, requestID, userID)
	if err != nil {
		return nil, err
	}
	if r.EmailMode != model.EmailModeAutomatic {
		return nil, fmt.Errorf("%w: request %s uses manual email", ErrInvalidMode, requestID)
	}
	return s.sendAutomatic(ctx, requestID, userID)
}

func (s *DispatchService) sendAutomatic(ctx context.Context, requestID, userID string) (*DeliveryResult, error) {
	log := zerolog.Ctx(ctx)

	r, err := getOwned(ctx, s.repo, requestID, userID)
	if err != nil {
		return nil, err
	}
	sc, err := loadScope(ctx, s.repo, r, true)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	content := s.render(user, sc.values())

	sendCtx, cancel := context.WithTimeout(ctx, s.settings.sendTimeout())
	sent, sendErr := s.transport.Send(sendCtx, userID, mail.OutgoingMessage{
		From:     user.Email,
		FromName: user.Name,
		To:       content.To,
		Subject:  content.Subject,
		Body:     content.Body,
		ThreadID: r.ThreadID(),
	})
	cancel()
	if sendErr == nil && sent == nil {
		sendErr = errors.New("mail transport returned no result")
	}

	var result *DeliveryResult
	err = s.repo.InTx(ctx, func(tx Repository) error {
		current, err := getOwned(ctx, tx, requestID, userID)
		if err != nil {
			return err
		}
		sc, err := loadScope(ctx, tx, current, true)
		if err != nil {
			return err
		}
		now := s.settings.now()
		if err := sc.mutate(ctx, tx, func(m *model.Request) error {
			a := m.Automatic
			if a == nil {
				a = &model.AutomaticDelivery{}
				m.Automatic = a
			}
			if sendErr != nil {
				msg := sendErr.Error()
				a.Failed = true
				a.FailedAt = &now
				a.FailureCount++
				a.Error = &msg
			} else {
				a.Sent = true
				a.SentAt = &now
				a.Failed = false
				a.FailedAt = nil
				a.FailureCount = 0
				a.Error = nil
				a.ThreadID = &sent.ThreadID
				a.MessageID = &sent.MessageID
			}
			m.UpdatedAt = now
			return nil
		}); err != nil {
			return err
		}
		result = newDeliveryResult(sc.rows[0], sc, len(sc.rows))
		result.RequestID = requestID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record delivery of request %s: %w", requestID, err)
	}

	if sendErr != nil {
		metrics.EmailDispatchTotal.WithLabelValues(string(model.EmailModeAutomatic), "failed").Inc()
		log.Warn().Err(sendErr).
			Str("request_id", requestID).
			Int("rows", result.UpdatedCount).
			Msg("request email send failed")
	} else {
		metrics.EmailDispatchTotal.WithLabelValues(string(model.EmailModeAutomatic), "sent").Inc()
		log.Info().
			Str("request_id", requestID).
			Str("thread_id", sent.ThreadID).
			Int("rows", result.UpdatedCount).
			Msg("request email sent")
	}
	return result, nil
}

// PrepareManual renders the email and freezes it on every row of the group.
// It refuses once the user confirmed sending.
func (s *DispatchService) PrepareManual(ctx context.Context, requestID, userID string) (*DeliveryResult, error) {
	var result *DeliveryResult
	err := s.repo.InTx(ctx, func(tx Repository) error {
		r, err := getOwned(ctx, tx, requestID, userID)
		if err != nil {
			return err
		}
		if r.EmailMode != model.EmailModeManual {
			return fmt.Errorf("%w: request %s uses automatic email", ErrInvalidMode, requestID)
		}
		sc, err := loadScope(ctx, tx, r, true)
		if err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user %s: %w", userID, err)
		}

		content := s.render(user, sc.values())
		now := s.settings.now()
		if err := sc.mutate(ctx, tx, func(m *model.Request) error {
			if m.Manual == nil {
				m.Manual = &model.ManualDelivery{}
			}
			if m.Manual.Confirmed {
				return fmt.Errorf("%w: request %s", ErrAlreadyConfirmed, m.ID)
			}
			c := content
			m.Manual.Content = &c
			m.UpdatedAt = now
			return nil
		}); err != nil {
			return err
		}
		result = newDeliveryResult(sc.rows[0], sc, len(sc.rows))
		result.RequestID = requestID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prepare email for request %s: %w", requestID, err)
	}
	metrics.EmailDispatchTotal.WithLabelValues(string(model.EmailModeManual), "prepared").Inc()
	return result, nil
}

// ConfirmSent records that the user sent the manual email themselves.
func (s *DispatchService) ConfirmSent(ctx context.Context, requestID, userID string) (*DeliveryResult, error) {
	var result *DeliveryResult
	err := s.repo.InTx(ctx, func(tx Repository) error {
		r, err := getOwned(ctx, tx, requestID, userID)
		if err != nil {
			return err
		}
		if r.EmailMode != model.EmailModeManual {
			return fmt.Errorf("%w: request %s uses automatic email", ErrInvalidMode, requestID)
		}
		if r.Manual != nil && r.Manual.Confirmed {
			return fmt.Errorf("%w: request %s", ErrAlreadyConfirmed, requestID)
		}
		sc, err := loadScope(ctx, tx, r, true)
		if err != nil {
			return err
		}

		now := s.settings.now()
		if err := sc.mutate(ctx, tx, func(m *model.Request) error {
			if m.Manual == nil {
				m.Manual = &model.ManualDelivery{}
			}
			m.Manual.Confirmed = true
			m.Manual.ConfirmedAt = &now
			m.UpdatedAt = now
			return nil
		}); err != nil {
			return err
		}
		result = newDeliveryResult(sc.rows[0], sc, len(sc.rows))
		result.RequestID = requestID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm email for request %s: %w", requestID, err)
	}
	metrics.EmailDispatchTotal.WithLabelValues(string(model.EmailModeManual), "confirmed").Inc()
	return result, nil
}

// ResetDeliveryState returns the delivery fields of the whole group to their
// initial values. Frozen manual content is kept. Only requests that are still
// pending on every day can be reset.
func (s *DispatchService) ResetDeliveryState(ctx context.Context, requestID, userID string) (*DeliveryResult, error) {
	var result *DeliveryResult
	err := s.repo.InTx(ctx, func(tx Repository) error {
		r, err := getOwned(ctx, tx, requestID, userID)
		if err != nil {
			return err
		}
		sc, err := loadScope(ctx, tx, r, true)
		if err != nil {
			return err
		}

		now := s.settings.now()
		if err := sc.mutate(ctx, tx, func(m *model.Request) error {
			if m.Status != model.StatusPending {
				return fmt.Errorf("%w: request %s is already %s", ErrPrecondition, m.ID, m.Status)
			}
			switch m.EmailMode {
			case model.EmailModeAutomatic:
				m.Automatic = &model.AutomaticDelivery{}
			case model.EmailModeManual:
				var content *model.EmailContent
				if m.Manual != nil {
					content = m.Manual.Content
				}
				m.Manual = &model.ManualDelivery{Content: content}
			}
			m.NeedsReview = false
			m.UpdatedAt = now
			return nil
		}); err != nil {
			return err
		}
		result = newDeliveryResult(sc.rows[0], sc, len(sc.rows))
		result.RequestID = requestID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset delivery of request %s: %w", requestID, err)
	}
	zerolog.Ctx(ctx).Info().Str("request_id", requestID).Int("rows", result.UpdatedCount).Msg("request delivery state reset")
	return result, nil
}

// EmailContent returns the frozen manual content, or what an automatic send
// would use.
func (s *DispatchService) EmailContent(ctx context.Context, requestID, userID string) (*model.EmailContent, error) {
	r, err := getOwned(ctx, s.repo, requestID, userID)
	if err != nil {
		return nil, err
	}
	if r.Manual != nil && r.Manual.Content != nil {
		return r.Manual.Content, nil
	}

	sc, err := loadScope(ctx, s.repo, r, true)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	content := s.render(user, sc.values())
	return &content, nil
}

// EmailStatus is the delivery state of one request.
type EmailStatus struct {
	RequestID   string                   `json:"request_id"`
	EmailMode   model.EmailMode          `json:"email_mode"`
	Status      model.Status             `json:"status"`
	Dispatched  bool                     `json:"dispatched"`
	Automatic   *model.AutomaticDelivery `json:"automatic,omitempty"`
	Confirmed   bool                     `json:"confirmed"`
	HasContent  bool                     `json:"has_content"`
	NeedsReview bool                     `json:"needs_review"`
	IsGroup     bool                     `json:"is_group"`
	GroupID     *string                  `json:"group_id"`
	GroupSize   int                      `json:"group_size"`
}

func (s *DispatchService) EmailStatus(ctx context.Context, requestID, userID string) (*EmailStatus, error) {
	r, err := getOwned(ctx, s.repo, requestID, userID)
	if err != nil {
		return nil, err
	}
	sc, err := loadScope(ctx, s.repo, r, false)
	if err != nil {
		return nil, err
	}

	st := &EmailStatus{
		RequestID:   r.ID,
		EmailMode:   r.EmailMode,
		Status:      r.Status,
		Dispatched:  r.EmailDispatched(),
		Automatic:   r.Automatic,
		NeedsReview: r.NeedsReview,
		IsGroup:     sc.group != nil,
		GroupID:     sc.groupID(),
		GroupSize:   sc.size(),
	}
	if r.Manual != nil {
		st.Confirmed = r.Manual.Confirmed
		st.HasContent = r.Manual.Content != nil
	}
	return st, nil
}

func (s *DispatchService) render(u *model.User, rows []model.Request) model.EmailContent {
	return s.settings.renderRequest(u, rows)
}

// renderRequest fills the request template for the rows of one request.
func (s Settings) renderRequest(u *model.User, rows []model.Request) model.EmailContent {
	f := signatureFields(u)
	custom := ""
	if len(rows) > 0 && rows[0].CustomMessage != nil {
		custom = *rows[0].CustomMessage
	}

	t := RenderTemplate(s.Templates.Request, map[string]string{
		"NAME":           f.Name,
		"CODE":           f.Code,
		"EMAIL":          f.Email,
		"SIGNATURE":      f.Signature,
		"DATES":          formatDates(rows),
		"REQUEST_LINES":  requestLines(rows),
		"CUSTOM_MESSAGE": custom,
	})
	return model.EmailContent{
		To:      s.SchedulingEmail,
		Subject: strings.TrimSpace(t.Subject),
		Body:    tidyBody(t.Body),
	}
}

func formatDates(rows []model.Request) string {
	if len(rows) == 0 {
		return ""
	}
	first := rows[0].StartDate
	last := rows[len(rows)-1].EndDate
	if first.Equal(last) {
		return first.Format(emailDateLayout)
	}
	return first.Format(emailDateLayout) + " - " + last.Format(emailDateLayout)
}

func requestLines(rows []model.Request) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		line := r.StartDate.Format(emailDateLayout) + " - " + r.Type.Label()
		if r.Type == model.TypeFlight && r.FlightNumber != nil {
			line += " " + *r.FlightNumber
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// tidyBody drops trailing spaces and collapses the blank runs left by empty
// placeholders.
func tidyBody(body string) string {
	body = trailingWSRe.ReplaceAllString(body, "\n")
	body = blankRunRe.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}
