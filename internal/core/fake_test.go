package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/timeoff/internal/mail"
	"github.com/edvin/timeoff/internal/model"
)

// ---------- In-memory repository ----------

type memData struct {
	users    map[string]model.User
	groups   map[string]model.Group
	requests map[string]model.Request
	replies  map[string]model.Reply
}

func (d *memData) clone() *memData {
	c := &memData{
		users:    map[string]model.User{},
		groups:   map[string]model.Group{},
		requests: map[string]model.Request{},
		replies:  map[string]model.Reply{},
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.groups {
		c.groups[k] = v
	}
	for k, v := range d.requests {
		c.requests[k] = cloneRequest(v)
	}
	for k, v := range d.replies {
		c.replies[k] = v
	}
	return c
}

func cloneRequest(r model.Request) model.Request {
	if r.Automatic != nil {
		a := *r.Automatic
		r.Automatic = &a
	}
	if r.Manual != nil {
		m := *r.Manual
		if m.Content != nil {
			c := *m.Content
			m.Content = &c
		}
		r.Manual = &m
	}
	return r
}

// memRepo implements Repository in memory. InTx serializes transactions and
// restores the previous state when fn fails. failOn injects an error into
// the named method after `after` successful calls.
type memRepo struct {
	mu     *sync.Mutex
	data   *memData
	inTx   bool
	faults *faults
}

type faults struct {
	method string
	after  int
	calls  int
}

var errInjected = errors.New("injected failure")

func newMemRepo() *memRepo {
	return &memRepo{
		mu: &sync.Mutex{},
		data: &memData{
			users:    map[string]model.User{},
			groups:   map[string]model.Group{},
			requests: map[string]model.Request{},
			replies:  map[string]model.Reply{},
		},
		faults: &faults{},
	}
}

func (m *memRepo) failOn(method string, after int) {
	m.faults.method = method
	m.faults.after = after
	m.faults.calls = 0
}

func (m *memRepo) fault(method string) error {
	if m.faults.method != method {
		return nil
	}
	m.faults.calls++
	if m.faults.calls > m.faults.after {
		return errInjected
	}
	return nil
}

func (m *memRepo) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memRepo) InTx(ctx context.Context, fn func(tx Repository) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	tx := &memRepo{mu: m.mu, data: m.data, inTx: true, faults: m.faults}
	if err := fn(tx); err != nil {
		*m.data = *snapshot
		return err
	}
	return nil
}

func (m *memRepo) InsertGroup(_ context.Context, g *model.Group) error {
	defer m.lock()()
	if err := m.fault("InsertGroup"); err != nil {
		return err
	}
	stored := *g
	stored.Members = nil
	m.data.groups[g.ID] = stored
	return nil
}

func (m *memRepo) GetGroup(_ context.Context, id string) (*model.Group, error) {
	defer m.lock()()
	g, ok := m.data.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, r := range m.data.requests {
		if r.GroupID != nil && *r.GroupID == id {
			g.Members = append(g.Members, cloneRequest(r))
		}
	}
	sort.Slice(g.Members, func(i, j int) bool { return g.Members[i].StartDate.Before(g.Members[j].StartDate) })
	return &g, nil
}

func (m *memRepo) TouchGroup(_ context.Context, id string, expected int) error {
	defer m.lock()()
	if err := m.fault("TouchGroup"); err != nil {
		return err
	}
	g, ok := m.data.groups[id]
	if !ok {
		return ErrNotFound
	}
	if g.Version != expected {
		return ErrConcurrentUpdate
	}
	g.Version++
	m.data.groups[id] = g
	return nil
}

func (m *memRepo) DeleteGroup(_ context.Context, id string) error {
	defer m.lock()()
	if err := m.fault("DeleteGroup"); err != nil {
		return err
	}
	delete(m.data.groups, id)
	return nil
}

func (m *memRepo) InsertRequest(_ context.Context, r *model.Request) error {
	defer m.lock()()
	if err := m.fault("InsertRequest"); err != nil {
		return err
	}
	m.data.requests[r.ID] = cloneRequest(*r)
	return nil
}

func (m *memRepo) GetRequest(_ context.Context, id string) (*model.Request, error) {
	defer m.lock()()
	r, ok := m.data.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneRequest(r)
	return &c, nil
}

func (m *memRepo) UpdateRequest(_ context.Context, r *model.Request) error {
	defer m.lock()()
	if err := m.fault("UpdateRequest"); err != nil {
		return err
	}
	cur, ok := m.data.requests[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != r.Version {
		return ErrConcurrentUpdate
	}
	r.Version++
	m.data.requests[r.ID] = cloneRequest(*r)
	return nil
}

func (m *memRepo) DeleteRequest(_ context.Context, id string) error {
	defer m.lock()()
	if err := m.fault("DeleteRequest"); err != nil {
		return err
	}
	if _, ok := m.data.requests[id]; !ok {
		return ErrNotFound
	}
	delete(m.data.requests, id)
	return nil
}

func (m *memRepo) ListRequestsByUser(_ context.Context, userID string, from, to time.Time) ([]model.Request, error) {
	defer m.lock()()
	var out []model.Request
	for _, r := range m.data.requests {
		if r.UserID != userID {
			continue
		}
		if !from.IsZero() && r.EndDate.Before(from) {
			continue
		}
		if !to.IsZero() && r.StartDate.After(to) {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *memRepo) ListRequestsByThread(_ context.Context, threadID string) ([]model.Request, error) {
	defer m.lock()()
	var out []model.Request
	for _, r := range m.data.requests {
		if r.ThreadID() == threadID {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *memRepo) ListThreads(_ context.Context, userID string) ([]model.ThreadRef, error) {
	defer m.lock()()
	anchors := map[string]model.Request{}
	for _, r := range m.data.requests {
		t := r.ThreadID()
		if r.UserID != userID || t == "" {
			continue
		}
		if cur, ok := anchors[t]; !ok || r.StartDate.Before(cur.StartDate) {
			anchors[t] = r
		}
	}
	var out []model.ThreadRef
	for t, r := range anchors {
		out = append(out, model.ThreadRef{ThreadID: t, RequestID: r.ID, UserID: r.UserID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out, nil
}

func (m *memRepo) SetNeedsReview(_ context.Context, threadID string, needsReview bool) error {
	defer m.lock()()
	for id, r := range m.data.requests {
		if r.ThreadID() == threadID {
			r.NeedsReview = needsReview
			m.data.requests[id] = r
		}
	}
	return nil
}

func (m *memRepo) InsertReply(_ context.Context, rep *model.Reply) (bool, error) {
	defer m.lock()()
	if err := m.fault("InsertReply"); err != nil {
		return false, err
	}
	for _, r := range m.data.replies {
		if r.MessageID == rep.MessageID {
			return false, nil
		}
	}
	m.data.replies[rep.ID] = *rep
	return true, nil
}

func (m *memRepo) GetReply(_ context.Context, id string) (*model.Reply, error) {
	defer m.lock()()
	r, ok := m.data.replies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *memRepo) UpdateReply(_ context.Context, rep *model.Reply) error {
	defer m.lock()()
	if err := m.fault("UpdateReply"); err != nil {
		return err
	}
	if _, ok := m.data.replies[rep.ID]; !ok {
		return ErrNotFound
	}
	m.data.replies[rep.ID] = *rep
	return nil
}

func (m *memRepo) ListRepliesByThread(_ context.Context, threadID string) ([]model.Reply, error) {
	defer m.lock()()
	var out []model.Reply
	for _, r := range m.data.replies {
		if r.ThreadID == threadID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (m *memRepo) ListRepliesByUser(_ context.Context, userID string, unprocessedOnly bool) ([]model.Reply, error) {
	defer m.lock()()
	var out []model.Reply
	for _, r := range m.data.replies {
		if r.UserID == userID && (!unprocessedOnly || !r.IsProcessed) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}

func (m *memRepo) CountUnprocessedReplies(_ context.Context, threadID string) (int, error) {
	defer m.lock()()
	n := 0
	for _, r := range m.data.replies {
		if r.ThreadID == threadID && !r.IsProcessed {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) InsertUser(_ context.Context, u *model.User) error {
	defer m.lock()()
	m.data.users[u.ID] = *u
	return nil
}

func (m *memRepo) GetUser(_ context.Context, id string) (*model.User, error) {
	defer m.lock()()
	u, ok := m.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	defer m.lock()()
	for _, u := range m.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) UpdateUser(_ context.Context, u *model.User) error {
	defer m.lock()()
	if _, ok := m.data.users[u.ID]; !ok {
		return ErrNotFound
	}
	m.data.users[u.ID] = *u
	return nil
}

func (m *memRepo) ListUsersWithOpenThreads(_ context.Context) ([]string, error) {
	defer m.lock()()
	seen := map[string]bool{}
	var out []string
	for _, r := range m.data.requests {
		if r.ThreadID() != "" && !seen[r.UserID] {
			seen[r.UserID] = true
			out = append(out, r.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// request returns the stored row, failing the test helper contract if absent.
func (m *memRepo) request(id string) model.Request {
	defer m.lock()()
	return cloneRequest(m.data.requests[id])
}

func (m *memRepo) reply(id string) model.Reply {
	defer m.lock()()
	return m.data.replies[id]
}

func (m *memRepo) group(id string) model.Group {
	defer m.lock()()
	return m.data.groups[id]
}

// ---------- Mock transport ----------

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, userID string, msg mail.OutgoingMessage) (*mail.SendResult, error) {
	args := m.Called(ctx, userID, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mail.SendResult), args.Error(1)
}

func (m *mockTransport) FetchThreadMessages(ctx context.Context, userID, threadID, sinceMessageID string) ([]mail.InboundMessage, error) {
	args := m.Called(ctx, userID, threadID, sinceMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mail.InboundMessage), args.Error(1)
}

// ---------- Fixtures ----------

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testSettings() Settings {
	tpl, err := LoadTemplates("")
	if err != nil {
		panic(err)
	}
	return Settings{
		SchedulingEmail: "scheduling@example.com",
		MinNoticeDays:   1,
		MaxAdvanceDays:  120,
		MaxGroupDays:    4,
		SendTimeout:     time.Second,
		Templates:       tpl,
		Now:             func() time.Time { return testNow },
	}
}

type testEnv struct {
	repo      *memRepo
	transport *mockTransport
	svc       *Services
	user      *model.User
}

func newTestEnv(mode model.EmailMode) *testEnv {
	repo := newMemRepo()
	transport := &mockTransport{}
	svc := NewServices(repo, transport, AuthSettings{Secret: "0123456789abcdef0123456789abcdef", Issuer: "timeoff"}, testSettings())

	sig := "Captain, Base OSL"
	user := &model.User{
		ID:        "user-1",
		Email:     "pilot@example.com",
		Name:      "Jane Pilot",
		Code:      "JPI",
		Signature: &sig,
		EmailMode: mode,
		Role:      model.RoleUser,
	}
	repo.data.users[user.ID] = *user
	repo.data.users["user-2"] = model.User{ID: "user-2", Email: "other@example.com", Name: "Other", Code: "OTH", EmailMode: mode, Role: model.RoleUser}
	repo.data.users["admin-1"] = model.User{ID: "admin-1", Email: "admin@example.com", Name: "Admin", Code: "ADM", EmailMode: mode, Role: model.RoleAdmin}
	return &testEnv{repo: repo, transport: transport, svc: svc, user: user}
}

// days returns n consecutive dates starting offset days after testNow.
func days(offset, n int) []time.Time {
	start := day(testNow).AddDate(0, 0, offset)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func dayOff() RequestFields { return RequestFields{Type: model.TypeDayOff} }
