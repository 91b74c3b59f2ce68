package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/timeoff/internal/mail"
	"github.com/edvin/timeoff/internal/metrics"
	"github.com/edvin/timeoff/internal/model"
	"github.com/edvin/timeoff/internal/platform"
)

// maxConcurrentThreadFetches bounds parallel reads from the mail provider
// during one check.
const maxConcurrentThreadFetches = 4

// ReplyService ingests replies on request threads and turns them into
// status decisions and answers.
type ReplyService struct {
	repo      Repository
	transport mail.Transport
	status    *StatusService
	settings  Settings
}

func NewReplyService(repo Repository, transport mail.Transport, status *StatusService, settings Settings) *ReplyService {
	return &ReplyService{repo: repo, transport: transport, status: status, settings: settings}
}

type CheckResult struct {
	Checked    int           `json:"checked"`
	Failed     int           `json:"failed"`
	NewReplies []model.Reply `json:"new_replies"`
}

// CheckForNewReplies reads every thread of the user's requests and stores
// messages not seen before. The user's own messages are skipped. A thread the
// provider cannot read is logged and counted, the others still go through.
func (s *ReplyService) CheckForNewReplies(ctx context.Context, userID string) (*CheckResult, error) {
	log := zerolog.Ctx(ctx)

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	threads, err := s.repo.ListThreads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads for user %s: %w", userID, err)
	}

	var (
		mu     sync.Mutex
		result = &CheckResult{NewReplies: []model.Reply{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentThreadFetches)
	for _, t := range threads {
		g.Go(func() error {
			replies, err := s.checkThread(gctx, user, t)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrExternalService) {
				metrics.ThreadFetchErrorsTotal.Inc()
				log.Warn().Err(err).Str("thread_id", t.ThreadID).Msg("reading request thread failed")
				result.Failed++
				return nil
			}
			if err != nil {
				return err
			}
			result.Checked++
			result.NewReplies = append(result.NewReplies, replies...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("check replies for user %s: %w", userID, err)
	}

	sort.SliceStable(result.NewReplies, func(i, j int) bool {
		return result.NewReplies[i].ReceivedAt.Before(result.NewReplies[j].ReceivedAt)
	})
	metrics.RepliesIngestedTotal.Add(float64(len(result.NewReplies)))
	log.Info().
		Str("user_id", userID).
		Int("threads", len(threads)).
		Int("new_replies", len(result.NewReplies)).
		Msg("checked request threads")
	return result, nil
}

func (s *ReplyService) checkThread(ctx context.Context, user *model.User, t model.ThreadRef) ([]model.Reply, error) {
	known, err := s.repo.ListRepliesByThread(ctx, t.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("list replies for thread %s: %w", t.ThreadID, err)
	}
	rows, err := s.repo.ListRequestsByThread(ctx, t.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("list requests for thread %s: %w", t.ThreadID, err)
	}

	seen := map[string]bool{}
	since := ""
	for _, r := range known {
		seen[r.MessageID] = true
		since = r.MessageID
	}
	for _, r := range rows {
		if r.Automatic != nil && r.Automatic.MessageID != nil {
			seen[*r.Automatic.MessageID] = true
		}
	}

	msgs, err := s.transport.FetchThreadMessages(ctx, user.ID, t.ThreadID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch thread %s: %v", ErrExternalService, t.ThreadID, err)
	}

	now := s.settings.now()
	var fresh []model.Reply
	for _, m := range msgs {
		if seen[m.ID] || strings.EqualFold(m.FromEmail, user.Email) {
			continue
		}
		fresh = append(fresh, newReply(t, m, now))
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	var stored []model.Reply
	err = s.repo.InTx(ctx, func(tx Repository) error {
		stored = stored[:0]
		for i := range fresh {
			created, err := tx.InsertReply(ctx, &fresh[i])
			if err != nil {
				return fmt.Errorf("insert reply %s: %w", fresh[i].MessageID, err)
			}
			if created {
				stored = append(stored, fresh[i])
			}
		}
		if len(stored) == 0 {
			return nil
		}
		return tx.SetNeedsReview(ctx, t.ThreadID, true)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func newReply(t model.ThreadRef, m mail.InboundMessage, now time.Time) model.Reply {
	raw := m.Body()
	rep := model.Reply{
		ID:         platform.NewID(),
		RequestID:  t.RequestID,
		UserID:     t.UserID,
		ThreadID:   t.ThreadID,
		MessageID:  m.ID,
		FromEmail:  m.FromEmail,
		Content:    CleanQuotedContent(raw),
		RawContent: raw,
		ReceivedAt: m.ReceivedAt,
		CreatedAt:  now,
	}
	if rep.ReceivedAt.IsZero() {
		rep.ReceivedAt = now
	}
	if m.InternetMessageID != "" {
		id := m.InternetMessageID
		rep.InternetMessageID = &id
	}
	if m.FromName != "" {
		name := m.FromName
		rep.FromName = &name
	}
	if m.Subject != "" {
		subject := m.Subject
		rep.Subject = &subject
	}
	return rep
}

// ListReplies returns the user's replies, newest first.
func (s *ReplyService) ListReplies(ctx context.Context, userID string, unprocessedOnly bool) ([]model.Reply, error) {
	replies, err := s.repo.ListRepliesByUser(ctx, userID, unprocessedOnly)
	if err != nil {
		return nil, fmt.Errorf("list replies for user %s: %w", userID, err)
	}
	return replies, nil
}

// Get returns the reply if userID owns it.
func (s *ReplyService) Get(ctx context.Context, replyID, userID string) (*model.Reply, error) {
	return getOwnedReply(ctx, s.repo, replyID, userID)
}

func getOwnedReply(ctx context.Context, repo Repository, replyID, userID string) (*model.Reply, error) {
	rep, err := repo.GetReply(ctx, replyID)
	if err != nil {
		return nil, fmt.Errorf("get reply %s: %w", replyID, err)
	}
	if rep.UserID != userID {
		return nil, fmt.Errorf("get reply %s: %w", replyID, ErrNotFound)
	}
	return rep, nil
}

// Conversation returns the thread of a request as a newest-first list.
func (s *ReplyService) Conversation(ctx context.Context, requestID, userID string) ([]model.ConversationMessage, error) {
	r, err := getOwned(ctx, s.repo, requestID, userID)
	if err != nil {
		return nil, err
	}
	thread := r.ThreadID()
	if thread == "" {
		return []model.ConversationMessage{}, nil
	}
	replies, err := s.repo.ListRepliesByThread(ctx, thread)
	if err != nil {
		return nil, fmt.Errorf("list replies for thread %s: %w", thread, err)
	}
	msgs := BuildConversation(replies)
	if msgs == nil {
		msgs = []model.ConversationMessage{}
	}
	return msgs, nil
}

// ApprovalDay is one row of a request as offered for a decision.
type ApprovalDay struct {
	RequestID    string            `json:"request_id"`
	Date         time.Time         `json:"date"`
	Type         model.RequestType `json:"type"`
	FlightNumber *string           `json:"flight_number,omitempty"`
	Status       model.Status      `json:"status"`
}

// ApprovalView is what the user decides on for a reply: one day with three
// actions, or every day of a group settable on its own.
type ApprovalView struct {
	Reply   model.Reply    `json:"reply"`
	IsGroup bool           `json:"is_group"`
	GroupID *string        `json:"group_id"`
	Days    []ApprovalDay  `json:"days"`
	Actions []model.Status `json:"actions"`
}

func (s *ReplyService) ApprovalView(ctx context.Context, replyID, userID string) (*ApprovalView, error) {
	rep, err := getOwnedReply(ctx, s.repo, replyID, userID)
	if err != nil {
		return nil, err
	}
	r, err := getOwned(ctx, s.repo, rep.RequestID, userID)
	if err != nil {
		return nil, err
	}
	sc, err := loadScope(ctx, s.repo, r, true)
	if err != nil {
		return nil, err
	}

	view := &ApprovalView{
		Reply:   *rep,
		IsGroup: sc.group != nil,
		GroupID: sc.groupID(),
		Actions: []model.Status{model.StatusDenied, model.StatusPending, model.StatusApproved},
	}
	for _, m := range sc.rows {
		view.Days = append(view.Days, ApprovalDay{
			RequestID:    m.ID,
			Date:         m.StartDate,
			Type:         m.Type,
			FlightNumber: m.FlightNumber,
			Status:       m.Status,
		})
	}
	return view, nil
}

// Decision is the status staged for one day.
type Decision struct {
	RequestID string       `json:"request_id"`
	Status    model.Status `json:"status"`
}

type ProcessResult struct {
	ReplyID      string         `json:"reply_id"`
	UpdatedCount int            `json:"updated_count"`
	Results      []StatusResult `json:"results"`
	Reply        model.Reply    `json:"reply"`
}

// ProcessReply applies one status to the reply's request. For a grouped
// request the same status is staged for every day.
func (s *ReplyService) ProcessReply(ctx context.Context, replyID, userID string, status model.Status) (*ProcessResult, error) {
	rep, err := getOwnedReply(ctx, s.repo, replyID, userID)
	if err != nil {
		return nil, err
	}
	r, err := getOwned(ctx, s.repo, rep.RequestID, userID)
	if err != nil {
		return nil, err
	}
	sc, err := loadScope(ctx, s.repo, r, true)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, 0, len(sc.rows))
	for _, m := range sc.rows {
		decisions = append(decisions, Decision{RequestID: m.ID, Status: status})
	}
	return s.ProcessReplyIndividual(ctx, replyID, userID, decisions)
}

// ProcessReplyIndividual applies each staged status to its own day, then
// marks the reply processed, all in one transaction. Every decision must name
// a day of the reply's request.
func (s *ReplyService) ProcessReplyIndividual(ctx context.Context, replyID, userID string, decisions []Decision) (*ProcessResult, error) {
	if len(decisions) == 0 {
		return nil, fmt.Errorf("%w: at least one decision is required", ErrValidation)
	}
	for _, d := range decisions {
		if !d.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, d.Status)
		}
	}

	actor := Actor{UserID: userID, Role: model.RoleUser}
	result := &ProcessResult{ReplyID: replyID}
	err := s.repo.InTx(ctx, func(tx Repository) error {
		rep, err := getOwnedReply(ctx, tx, replyID, userID)
		if err != nil {
			return err
		}
		anchor, err := getOwned(ctx, tx, rep.RequestID, userID)
		if err != nil {
			return err
		}
		sc, err := loadScope(ctx, tx, anchor, true)
		if err != nil {
			return err
		}

		days := map[string]bool{}
		for _, m := range sc.rows {
			days[m.ID] = true
		}
		staged := map[string]bool{}
		for _, d := range decisions {
			if !days[d.RequestID] {
				return fmt.Errorf("%w: request %s is not part of this reply's request", ErrValidation, d.RequestID)
			}
			if staged[d.RequestID] {
				return fmt.Errorf("%w: request %s has more than one decision", ErrValidation, d.RequestID)
			}
			staged[d.RequestID] = true
		}

		now := s.settings.now()
		for _, d := range decisions {
			res, err := s.status.setStatus(ctx, tx, actor, StatusUpdate{
				RequestID: d.RequestID,
				Target:    d.Status,
				Method:    model.MethodReplyEmailParsing,
			}, now)
			if err != nil {
				return err
			}
			result.Results = append(result.Results, *res)
			result.UpdatedCount += res.UpdatedCount
		}

		by := userID
		rep.IsProcessed = true
		rep.ProcessedAt = &now
		rep.ProcessedBy = &by
		if err := tx.UpdateReply(ctx, rep); err != nil {
			return fmt.Errorf("update reply %s: %w", rep.ID, err)
		}
		result.Reply = *rep

		return refreshNeedsReview(ctx, tx, rep.ThreadID)
	})
	if err != nil {
		return nil, fmt.Errorf("process reply %s: %w", replyID, err)
	}

	for _, res := range result.Results {
		metrics.StatusUpdatesTotal.WithLabelValues(res.Method, string(res.Status)).Inc()
	}
	zerolog.Ctx(ctx).Info().
		Str("reply_id", replyID).
		Int("rows", result.UpdatedCount).
		Msg("reply processed")
	return result, nil
}

// refreshNeedsReview flags the thread's requests while unprocessed replies
// remain on it.
func refreshNeedsReview(ctx context.Context, tx Repository, threadID string) error {
	n, err := tx.CountUnprocessedReplies(ctx, threadID)
	if err != nil {
		return fmt.Errorf("count unprocessed replies for thread %s: %w", threadID, err)
	}
	return tx.SetNeedsReview(ctx, threadID, n > 0)
}

// Respond sends message as an answer on the reply's thread and stores it on
// the reply. The reply is only written once the send succeeded.
func (s *ReplyService) Respond(ctx context.Context, replyID, userID, message string) (*model.Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message must not be empty", ErrValidation)
	}

	rep, err := getOwnedReply(ctx, s.repo, replyID, userID)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	subject := "Time off request"
	if rep.Subject != nil && *rep.Subject != "" {
		subject = *rep.Subject
	}
	out := mail.OutgoingMessage{
		From:     user.Email,
		FromName: user.Name,
		To:       rep.FromEmail,
		Subject:  mail.ReplySubject(subject),
		Body:     message,
		ThreadID: rep.ThreadID,
	}
	if rep.InternetMessageID != nil {
		out.InReplyTo = *rep.InternetMessageID
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.settings.sendTimeout())
	defer cancel()
	if _, err := s.transport.Send(sendCtx, userID, out); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("reply_id", replyID).Msg("sending reply answer failed")
		return nil, fmt.Errorf("%w: send answer to reply %s: %v", ErrExternalService, replyID, err)
	}

	now := s.settings.now()
	rep.UserReplySent = true
	rep.UserReplyContent = &message
	rep.UserReplySentAt = &now
	if err := s.repo.UpdateReply(ctx, rep); err != nil {
		return nil, fmt.Errorf("update reply %s: %w", replyID, err)
	}
	return rep, nil
}
