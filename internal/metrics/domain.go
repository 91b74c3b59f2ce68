package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmailDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeoff_email_dispatch_total",
		Help: "Request email dispatches by mode and outcome",
	}, []string{"mode", "outcome"})

	StatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeoff_status_updates_total",
		Help: "Request rows whose status was set, by method and status",
	}, []string{"method", "status"})

	RepliesIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeoff_replies_ingested_total",
		Help: "Inbound replies stored from request threads",
	})

	ThreadFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeoff_thread_fetch_errors_total",
		Help: "Failed attempts to read a request thread from the mail provider",
	})

	ActivityRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeoff_worker_activity_runs_total",
		Help: "Temporal activity executions by activity and outcome",
	}, []string{"activity", "outcome"})
)
