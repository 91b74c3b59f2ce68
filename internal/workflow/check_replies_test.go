package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/timeoff/internal/activity"
)

type CheckRepliesWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *CheckRepliesWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *CheckRepliesWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *CheckRepliesWorkflowTestSuite) summary() CheckRepliesSummary {
	var got CheckRepliesSummary
	s.Require().NoError(s.env.GetWorkflowResult(&got))
	return got
}

func (s *CheckRepliesWorkflowTestSuite) TestNoUsers() {
	s.env.OnActivity("ListUsersWithOpenThreads", mock.Anything).Return([]string{}, nil)

	s.env.ExecuteWorkflow(CheckRepliesWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.Equal(CheckRepliesSummary{}, s.summary())
}

func (s *CheckRepliesWorkflowTestSuite) TestSumsUserResults() {
	s.env.OnActivity("ListUsersWithOpenThreads", mock.Anything).Return([]string{"user-1", "user-2"}, nil)
	s.env.OnActivity("CheckUserReplies", mock.Anything, "user-1").
		Return(&activity.CheckUserRepliesResult{UserID: "user-1", Checked: 2, NewReplies: 1}, nil)
	s.env.OnActivity("CheckUserReplies", mock.Anything, "user-2").
		Return(&activity.CheckUserRepliesResult{UserID: "user-2", Checked: 3, Failed: 1, NewReplies: 2}, nil)

	s.env.ExecuteWorkflow(CheckRepliesWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.Equal(CheckRepliesSummary{Users: 2, Checked: 5, Failed: 1, NewReplies: 3}, s.summary())
}

func (s *CheckRepliesWorkflowTestSuite) TestFailedUserDoesNotStopOthers() {
	s.env.OnActivity("ListUsersWithOpenThreads", mock.Anything).Return([]string{"user-1", "user-2"}, nil)
	s.env.OnActivity("CheckUserReplies", mock.Anything, "user-1").
		Return(nil, errors.New("token revoked"))
	s.env.OnActivity("CheckUserReplies", mock.Anything, "user-2").
		Return(&activity.CheckUserRepliesResult{UserID: "user-2", Checked: 1, NewReplies: 1}, nil)

	s.env.ExecuteWorkflow(CheckRepliesWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.Equal(CheckRepliesSummary{Users: 2, FailedUsers: 1, Checked: 1, NewReplies: 1}, s.summary())
}

func (s *CheckRepliesWorkflowTestSuite) TestBatchesLargeRoster() {
	var ids []string
	for i := range maxParallelChecks + 5 {
		ids = append(ids, fmt.Sprintf("user-%d", i))
	}
	s.env.OnActivity("ListUsersWithOpenThreads", mock.Anything).Return(ids, nil)
	s.env.OnActivity("CheckUserReplies", mock.Anything, mock.Anything).
		Return(&activity.CheckUserRepliesResult{Checked: 1}, nil).Times(len(ids))

	s.env.ExecuteWorkflow(CheckRepliesWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.Equal(CheckRepliesSummary{Users: len(ids), Checked: len(ids)}, s.summary())
}

func (s *CheckRepliesWorkflowTestSuite) TestListUsersFails() {
	s.env.OnActivity("ListUsersWithOpenThreads", mock.Anything).Return(nil, errors.New("db down"))

	s.env.ExecuteWorkflow(CheckRepliesWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestCheckRepliesWorkflow(t *testing.T) {
	suite.Run(t, new(CheckRepliesWorkflowTestSuite))
}
