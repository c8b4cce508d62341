// Package broker defines the thin publish/subscribe abstraction every
// workflow component talks to, plus an in-memory implementation for tests
// and single-process deployments.
//
// Messages are opaque byte slices; the command and queue packages own their
// own wire formats. Subscribe blocks until the context is cancelled, so a
// consumer is typically run inside an errgroup:
//
//	b := broker.NewMemoryBroker(broker.WithBufferSize(256))
//	g.Go(func() error { return b.Subscribe(ctx, "appointment-commands", router.Consume("appointment-commands")) })
//
// Redis Streams and Kafka adapters live under integration/broker.
package broker
