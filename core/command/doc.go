// Package command carries appointment commands across the broker and owns the
// retry and dead-letter policy applied to every command handler.
//
// # Envelope
//
// Every command travels as an Envelope:
//
//	{"traceId":"…","action":"update","data":{…},"retryCount":0}
//
// Envelopes are immutable once published. A retry publishes env.Next(), which
// keeps the trace id and increments the retry counter.
//
// # Router
//
// The Router invokes the handler registered for an envelope's action and
// decides what happens on failure:
//
//   - retryable failure below the retry ceiling: republish to the same topic
//   - retryable failure at the ceiling: publish a DeadLetter to "<topic>-dlq"
//   - permanent failure (an error whose Permanent method reports true): the
//     user is told immediately, nothing is republished
//   - publish failure on either path: a TransportError is returned and the
//     failure response is pushed straight to the originating user
//
// The terminal dead-letter consumer never republishes. It alerts the
// administrator and tells the user that the request failed for good.
//
//	router := command.NewRouter(b,
//		command.WithMaxRetries(5),
//		command.WithNotifier(pipeline),
//		command.WithAlerter(escalator),
//		command.WithLogger(log),
//	)
//	router.Handle(command.ActionUpdate, svc.HandleUpdate)
//
//	g.Go(func() error { return b.Subscribe(ctx, "appointment-commands", router.Consume("appointment-commands")) })
//	g.Go(func() error { return b.Subscribe(ctx, "appointment-commands-dlq", router.ConsumeDeadLetters("appointment-commands")) })
package command
