package main

import (
	"github.com/clinicflow/clinicflow/core/appointment"
	"github.com/clinicflow/clinicflow/core/command"
	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/notification"
	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/pkg/metrics"
	"github.com/clinicflow/clinicflow/pkg/realtime"
)

func registerBrokerMetrics(reg *metrics.Registry, stats func() (published, delivered, failed int64)) {
	reg.MustCounter("broker", "published_total", "Messages published.", func() int64 {
		p, _, _ := stats()
		return p
	})
	reg.MustCounter("broker", "delivered_total", "Messages handed to a subscriber.", func() int64 {
		_, d, _ := stats()
		return d
	})
	reg.MustCounter("broker", "handler_failures_total", "Subscriber handler failures.", func() int64 {
		_, _, f := stats()
		return f
	})
}

func registerMetrics(
	reg *metrics.Registry,
	router *command.Router,
	queueSvc *queue.Service,
	pipeline *notification.Pipeline,
	appointments *appointment.Service,
	escalator *escalation.Escalator,
	hub *realtime.Hub,
) {
	reg.MustCounter("command", "handled_total", "Command envelopes routed to a handler.", func() int64 { return router.Stats().Handled })
	reg.MustCounter("command", "succeeded_total", "Commands handled successfully.", func() int64 { return router.Stats().Succeeded })
	reg.MustCounter("command", "retried_total", "Commands republished for retry.", func() int64 { return router.Stats().Retried })
	reg.MustCounter("command", "dead_lettered_total", "Commands published to the dead-letter topic.", func() int64 { return router.Stats().DeadLettered })
	reg.MustCounter("command", "rejected_total", "Commands rejected with a permanent error.", func() int64 { return router.Stats().Rejected })
	reg.MustCounter("command", "fallbacks_total", "Direct user failure pushes after a publish failure.", func() int64 { return router.Stats().Fallbacks })
	reg.MustCounter("command", "dropped_total", "Malformed or unknown command messages.", func() int64 { return router.Stats().Dropped })
	reg.MustCounter("command", "terminal_total", "Dead letters handled by the terminal consumer.", func() int64 { return router.Stats().Terminal })

	worker := queueSvc.Worker()
	reg.MustCounter("queue", "processed_total", "Jobs completed.", func() int64 { return worker.Stats().TasksProcessed })
	reg.MustCounter("queue", "failed_total", "Failed job attempts.", func() int64 { return worker.Stats().TasksFailed })
	reg.MustCounter("queue", "dead_lettered_total", "Jobs moved to the dead-letter queue.", func() int64 { return worker.Stats().TasksDeadLettered })
	reg.MustCounter("queue", "publish_failures_total", "Dead jobs that could not be published.", func() int64 { return worker.Stats().PublishFailures })
	reg.MustGauge("queue", "active_jobs", "Jobs currently running.", func() int64 { return int64(worker.Stats().ActiveTasks) })

	reg.MustCounter("notification", "scheduled_total", "Notification tasks enqueued.", func() int64 { return pipeline.Stats().Scheduled })
	reg.MustCounter("notification", "delivered_total", "Notifications persisted and pushed.", func() int64 { return pipeline.Stats().Delivered })
	reg.MustCounter("notification", "dead_lettered_total", "Exhausted notification tasks.", func() int64 { return pipeline.Stats().DeadLettered })
	reg.MustCounter("notification", "user_emails_total", "Failure emails sent to users.", func() int64 { return pipeline.Stats().UserEmails })
	reg.MustCounter("notification", "push_failures_total", "Direct failure pushes that could not be sent.", func() int64 { return pipeline.Stats().PushFailures })

	reg.MustCounter("appointment", "submitted_total", "Commands submitted.", func() int64 { return appointments.Stats().Submitted })
	reg.MustCounter("appointment", "transitioned_total", "Transitions persisted.", func() int64 { return appointments.Stats().Transitioned })
	reg.MustCounter("appointment", "replayed_total", "Redelivered commands replayed.", func() int64 { return appointments.Stats().Replayed })
	reg.MustCounter("appointment", "stale_jobs_total", "Scheduled jobs rejected as stale.", func() int64 { return appointments.Stats().StaleJobs })
	reg.MustCounter("appointment", "dead_jobs_total", "Exhausted scheduled jobs.", func() int64 { return appointments.Stats().DeadJobs })

	reg.MustCounter("escalation", "sent_total", "Admin alerts delivered.", func() int64 { return escalator.Stats().Sent })
	reg.MustCounter("escalation", "failed_total", "Admin alerts that could not be delivered.", func() int64 { return escalator.Stats().Failed })
	reg.MustCounter("escalation", "throttled_total", "Warning alerts suppressed by the throttle.", func() int64 { return escalator.Stats().Throttled })

	reg.MustGauge("realtime", "connections", "Live websocket connections.", func() int64 { return hub.Stats().Connections })
	reg.MustCounter("realtime", "sent_total", "Frames written.", func() int64 { return hub.Stats().Sent })
	reg.MustCounter("realtime", "no_connection_total", "Sends skipped without a live connection.", func() int64 { return hub.Stats().NoConnection })
	reg.MustCounter("realtime", "write_failures_total", "Frames that failed to write.", func() int64 { return hub.Stats().WriteFailures })
}
