package workflow

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/timeoff/internal/metrics"
)

// ActivityInterceptor counts activity runs by outcome and types activity
// errors with the activity name, so a failed reply check shows
// "CheckUserReplies" in the Temporal UI instead of a generic error.
type ActivityInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (i *ActivityInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &activityInterceptor{next: next}
}

type activityInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (a *activityInterceptor) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return a.next.Init(outbound)
}

func (a *activityInterceptor) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	name := activity.GetInfo(ctx).ActivityType.Name
	result, err := a.next.ExecuteActivity(ctx, in)
	metrics.ActivityRunsTotal.WithLabelValues(name, outcome(err)).Inc()
	return result, typeActivityError(name, err)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// typeActivityError wraps err in an application error typed with the
// activity name. Errors that already carry a type are returned unchanged.
func typeActivityError(name string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return err
	}
	return temporal.NewApplicationError(err.Error(), name, err)
}
