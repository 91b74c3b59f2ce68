package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/timeoff/internal/mail"
	"github.com/edvin/timeoff/internal/model"
)

const expectedGroupBody = "Hello,\n\nI would like to request the following:\n\n" +
	"03/03/2026 - Day off\n04/03/2026 - Day off\n05/03/2026 - Day off\n\n" +
	"Kind regards,\nJane Pilot (JPI)\nCaptain, Base OSL"

func createGroup(t *testing.T, env *testEnv, n int) *model.Group {
	t.Helper()
	g, err := env.svc.Group.CreateGroup(context.Background(), "user-1", days(1, n), dayOff())
	require.NoError(t, err)
	return g
}

func TestDispatch_AutomaticSendsAndMarksGroup(t *testing.T) {
	env := newTestEnv(model.EmailModeAutomatic)
	ctx := context.Background()
	g := createGroup(t, env, 3)

	env.transport.On("Send", mock.Anything, "user-1", mock.MatchedBy(func(msg mail.OutgoingMessage) bool {
		return msg.To == "scheduling@example.com" &&
			msg.From == "pilot@example.com" &&
			msg.Subject == "Time off request - JPI - 03/03/2026 - 05/03/2026" &&
			msg.Body == expectedGroupBody &&
			msg.ThreadID == ""
	})).Run(func(args mock.Arguments) {
		_, hasDeadline := args.Get(0).(context.Context).Deadline()
		assert.True(t, hasDeadline)
	}).Return(&mail.SendResult{MessageID: "m-1", ThreadID: "t-1"}, nil).Once()

	res, err := env.svc.Dispatch.Dispatch(ctx, g.Members[1].ID, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.False(t, res.Failed)
	assert.Equal(t, 3, res.UpdatedCount)
	assert.True(t, res.IsGroup)
	assert.Equal(t, g.ID, *res.GroupID)
	assert.Equal(t, g.Members[1].ID, res.RequestID)

	for _, id := range g.MemberIDs() {
		r := env.repo.request(id)
		assert.True(t, r.Automatic.Sent)
		assert.Equal(t, testNow, *r.Automatic.SentAt)
		assert.Equal(t, "t-1", *r.Automatic.ThreadID)
		assert.Equal(t, "m-1", *r.Automatic.MessageID)
	}
	env.transport.AssertExpectations(t)

	_, err = env.svc.Dispatch.Dispatch(ctx, g.Members[0].ID, "user-1")
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestDispatch_AutomaticFailureIsRecorded(t *testing.T) {
	env := newTestEnv(model.EmailModeAutomatic)
	ctx := context.Background()
	g := createGroup(t, env, 2)

	env.transport.On("Send", mock.Anything, "user-1", mock.Anything).
		Return(nil, errors.New("smtp unavailable")).Twice()

	res, err := env.svc.Dispatch.Dispatch(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.True(t, res.Failed)
	assert.Equal(t, "smtp unavailable", *res.Error)

	res, err = env.svc.Dispatch.Resend(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Failed)

	for _, id := range g.MemberIDs() {
		r := env.repo.request(id)
		assert.False(t, r.Automatic.Sent)
		assert.True(t, r.Automatic.Failed)
		assert.Equal(t, 2, r.Automatic.FailureCount)
		assert.Equal(t, testNow, *r.Automatic.FailedAt)
		assert.Equal(t, model.StatusPending, r.Status)
	}
}

func TestResend_SuccessClearsFailure(t *testing.T) {
	env := newTestEnv(model.EmailModeAutomatic)
	ctx := context.Background()
	rows, err := env.svc.Request.Create(ctx, "user-1", days(1, 1), dayOff())
	require.NoError(t, err)

	env.transport.On("Send", mock.Anything, "user-1", mock.Anything).
		Return(nil, context.DeadlineExceeded).Once()
	_, err = env.svc.Dispatch.Dispatch(ctx, rows[0].ID, "user-1")
	require.NoError(t, err)

	env.transport.On("Send", mock.Anything, "user-1", mock.Anything).
		Return(&mail.SendResult{MessageID: "m-2", ThreadID: "t-2"}, nil).Once()
	res, err := env.svc.Dispatch.Resend(ctx, rows[0].ID, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.False(t, res.IsGroup)
	assert.Equal(t, 1, res.UpdatedCount)

	r := env.repo.request(rows[0].ID)
	assert.True(t, r.Automatic.Sent)
	assert.False(t, r.Automatic.Failed)
	assert.Nil(t, r.Automatic.Error)
	assert.Nil(t, r.Automatic.FailedAt)
	assert.Zero(t, r.Automatic.FailureCount)
}

func TestResend_SendsIntoExistingThread(t *testing.T) {
	env := newTestEnv(model.EmailModeAutomatic)
	ctx := context.Background()
	rows, err := env.svc.Request.Create(ctx, "user-1", days(1, 1), dayOff())
	require.NoError(t, err)

	env.transport.On("Send", mock.Anything, "user-1", mock.MatchedBy(func(msg mail.OutgoingMessage) bool {
		return msg.ThreadID == ""
	})).Return(&mail.SendResult{MessageID: "m-1", ThreadID: "t-1"}, nil).Once()
	env.transport.On("Send", mock.Anything, "user-1", mock.MatchedBy(func(msg mail.OutgoingMessage) bool {
		return msg.ThreadID == "t-1"
	})).Return(&mail.SendResult{MessageID: "m-2", ThreadID: "t-1"}, nil).Once()

	_, err = env.svc.Dispatch.Dispatch(ctx, rows[0].ID, "user-1")
	require.NoError(t, err)
	_, err = env.svc.Dispatch.Resend(ctx, rows[0].ID, "user-1")
	require.NoError(t, err)
	env.transport.AssertExpectations(t)
}

func TestResend_ManualModeIsInvalid(t *testing.T) {
	env := newTestEnv(model.EmailModeManual)
	g := createGroup(t, env, 2)

	_, err := env.svc.Dispatch.Resend(context.Background(), g.Members[0].ID, "user-1")
	assert.ErrorIs(t, err, ErrInvalidMode)
	env.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_ManualFreezesContent(t *testing.T) {
	env := newTestEnv(model.EmailModeManual)
	g := createGroup(t, env, 3)

	res, err := env.svc.Dispatch.Dispatch(context.Background(), g.Members[0].ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.UpdatedCount)
	assert.False(t, res.Confirmed)
	require.NotNil(t, res.Content)
	assert.Equal(t, expectedGroupBody, res.Content.Body)

	for _, id := range g.MemberIDs() {
		r := env.repo.request(id)
		require.NotNil(t, r.Manual.Content)
		assert.Equal(t, "scheduling@example.com", r.Manual.Content.To)
		assert.Equal(t, expectedGroupBody, r.Manual.Content.Body)
		assert.False(t, r.Manual.Confirmed)
	}
	env.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmSent_ScenarioGroupOfThree(t *testing.T) {
	env := newTestEnv(model.EmailModeManual)
	ctx := context.Background()
	g := createGroup(t, env, 3)
	_, err := env.svc.Dispatch.Dispatch(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)

	res, err := env.svc.Dispatch.ConfirmSent(ctx, g.Members[2].ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.UpdatedCount)
	assert.True(t, res.IsGroup)
	for _, id := range g.MemberIDs() {
		assert.True(t, env.repo.request(id).Manual.Confirmed)
	}
}

func TestConfirmSent_SecondCallIsAlreadyConfirmed(t *testing.T) {
	env := newTestEnv(model.EmailModeManual)
	ctx := context.Background()
	g := createGroup(t, env, 2)

	_, err := env.svc.Dispatch.ConfirmSent(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)
	before := env.repo.request(g.Members[1].ID)

	_, err = env.svc.Dispatch.ConfirmSent(ctx, g.Members[1].ID, "user-1")
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.Equal(t, before, env.repo.request(g.Members[1].ID))
}

func TestConfirmSent_AutomaticModeIsInvalid(t *testing.T) {
	env := newTestEnv(model.EmailModeAutomatic)
	g := createGroup(t, env, 2)

	_, err := env.svc.Dispatch.ConfirmSent(context.Background(), g.Members[0].ID, "user-1")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestConfirmSent_RollsBackOnPartialUpdate(t *testing.T) {
	env := newTestEnv(model.EmailModeManual)
	g := createGroup(t, env, 3)
	env.repo.failOn("UpdateRequest", 2)

	_, err := env.svc.Dispatch.ConfirmSent(context.Background(), g.Members[0].ID, "user-1")
	require.ErrorIs(t, err, errInjected)
	for _, id := range g.MemberIDs() {
		assert.False(t, env.repo.request(id).Manual.Confirmed)
	}
	assert.Equal(t, 1, env.repo.group(g.ID).Version)
}

func TestEmailModeIsFixedAtCreation(t *testing.T) {
	env := newTestEnv(model.EmailModeManual)
	ctx := context.Background()
	g := createGroup(t, env, 2)

	mode := model.EmailModeAutomatic
	_, err := env.svc.User.UpdatePreferences(ctx, "user-1", Preferences{EmailMode: &mode})
	require.NoError(t, err)

	for _, id := range g.MemberIDs() {
		assert.Equal(t, model.EmailModeManual, env.repo.request(id).EmailMode)
	}
	_, err = env.svc.Dispatch.Resend(ctx, g.Members[0].ID, "user-1")
	assert.ErrorIs(t, err, ErrInvalidMode)

	rows, err := env.svc.Request.Create(ctx, "user-1", days(10, 1), dayOff())
	require.NoError(t, err)
	assert.Equal(t, model.EmailModeAutomatic, rows[0].EmailMode)
}

func TestResetDeliveryState(t *testing.T) {
	env := newTestEnv(model.EmailModeManual)
	ctx := context.Background()
	g := createGroup(t, env, 2)
	_, err := env.svc.Dispatch.Dispatch(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)
	_, err = env.svc.Dispatch.ConfirmSent(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)

	res, err := env.svc.Dispatch.ResetDeliveryState(ctx, g.Members[1].ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.UpdatedCount)
	for _, id := range g.MemberIDs() {
		r := env.repo.request(id)
		assert.False(t, r.Manual.Confirmed)
		assert.Nil(t, r.Manual.ConfirmedAt)
		assert.NotNil(t, r.Manual.Content)
	}
}

func TestResetDeliveryState_AutomaticClearsEverything(t *testing.T) {
	env := newTestEnv(model.EmailModeAutomatic)
	ctx := context.Background()
	g := createGroup(t, env, 2)

	env.transport.On("Send", mock.Anything, "user-1", mock.Anything).
		Return(&mail.SendResult{MessageID: "m-1", ThreadID: "t-1"}, nil).Once()
	_, err := env.svc.Dispatch.Dispatch(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)

	_, err = env.svc.Dispatch.ResetDeliveryState(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)
	for _, id := range g.MemberIDs() {
		assert.Equal(t, &model.AutomaticDelivery{}, env.repo.request(id).Automatic)
	}
}

func TestResetDeliveryState_RefusedAfterDecision(t *testing.T) {
	env := newTestEnv(model.EmailModeManual)
	ctx := context.Background()
	g := createGroup(t, env, 2)
	_, err := env.svc.Dispatch.ConfirmSent(ctx, g.Members[0].ID, "user-1")
	require.NoError(t, err)
	_, err = env.svc.Status.SetStatus(ctx, Actor{UserID: "user-1"}, StatusUpdate{
		RequestID: g.Members[1].ID,
		Target:    model.StatusApproved,
	})
	require.NoError(t, err)

	_, err = env.svc.Dispatch.ResetDeliveryState(ctx, g.Members[0].ID, "user-1")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.True(t, env.repo.request(g.Members[0].ID).Manual.Confirmed)
}

func TestEmailContentAndStatus(t *testing.T) {
	env := newTestEnv(model.EmailModeAutomatic)
	ctx := context.Background()
	rows, err := env.svc.Request.Create(ctx, "user-1", days(1, 1), RequestFields{
		Type:          model.TypeFlight,
		FlightNumber:  strPtr("DY123"),
		CustomMessage: strPtr("Positioning flight home."),
	})
	require.NoError(t, err)

	content, err := env.svc.Dispatch.EmailContent(ctx, rows[0].ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Time off request - JPI - 03/03/2026", content.Subject)
	assert.Contains(t, content.Body, "03/03/2026 - Flight DY123\n\nPositioning flight home.\n\nKind regards,")

	st, err := env.svc.Dispatch.EmailStatus(ctx, rows[0].ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.EmailModeAutomatic, st.EmailMode)
	assert.False(t, st.Dispatched)
	assert.False(t, st.IsGroup)
	assert.Equal(t, 1, st.GroupSize)

	_, err = env.svc.Dispatch.EmailStatus(ctx, rows[0].ID, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)
}
