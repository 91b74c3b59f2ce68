package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/timeoff/internal/activity"
)

// maxParallelChecks bounds how many users are checked at once.
const maxParallelChecks = 10

// CheckRepliesSummary is the result of one CheckRepliesWorkflow run.
type CheckRepliesSummary struct {
	Users       int `json:"users"`
	FailedUsers int `json:"failed_users"`
	Checked     int `json:"checked"`
	Failed      int `json:"failed"`
	NewReplies  int `json:"new_replies"`
}

// CheckRepliesWorkflow runs on a schedule and reads new replies for every
// user with a dispatched request thread. A user whose check fails is logged
// and skipped; the run only fails if the user list cannot be read.
func CheckRepliesWorkflow(ctx workflow.Context) (*CheckRepliesSummary, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    5 * time.Second,
			MaximumInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
	logger := workflow.GetLogger(ctx)

	var userIDs []string
	err := workflow.ExecuteActivity(ctx, "ListUsersWithOpenThreads").Get(ctx, &userIDs)
	if err != nil {
		return nil, fmt.Errorf("list users with open threads: %w", err)
	}

	summary := &CheckRepliesSummary{Users: len(userIDs)}
	for start := 0; start < len(userIDs); start += maxParallelChecks {
		end := min(start+maxParallelChecks, len(userIDs))

		futures := make([]workflow.Future, 0, end-start)
		for _, id := range userIDs[start:end] {
			futures = append(futures, workflow.ExecuteActivity(ctx, "CheckUserReplies", id))
		}

		for i, f := range futures {
			var res activity.CheckUserRepliesResult
			if err := f.Get(ctx, &res); err != nil {
				summary.FailedUsers++
				logger.Warn("reply check failed for user", "userID", userIDs[start+i], "error", err)
				continue
			}
			summary.Checked += res.Checked
			summary.Failed += res.Failed
			summary.NewReplies += res.NewReplies
		}
	}

	logger.Info("reply check finished",
		"users", summary.Users,
		"failedUsers", summary.FailedUsers,
		"newReplies", summary.NewReplies)
	return summary, nil
}
