// Package notification delivers user notifications through the delayed job
// queue with its own retry budget and dead-letter handling.
//
// SendNotifications enqueues a Task on the notification-scheduled queue.
// The worker runs Deliver, which persists the notification, invalidates the
// user's cached read list and pushes a notification.new event to the live
// connection. Deliver is idempotent per task: the notification id is the task
// id, so a retried delivery overwrites rather than duplicates.
//
// When a delivery exhausts its attempts, the worker publishes a DeadJob on
// notification-dlq. HandleDeadLetter then emails the user and alerts the
// administrator; the two obligations are isolated from each other.
//
//	p := notification.NewPipeline(queueService, store,
//		notification.WithSink(hub),
//		notification.WithCache(cache),
//		notification.WithDirectory(users),
//		notification.WithMailer(sender),
//		notification.WithAlerter(escalator),
//	)
//	queueService.RegisterHandler(p.TaskHandler())
//	b.Subscribe(ctx, notification.DeadLetterTopic, p.DeadLetterHandler())
package notification
