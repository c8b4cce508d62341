// Package redis implements broker.Broker on Redis Streams.
//
// Every topic maps to one stream. Subscribers join a consumer group, so
// replicas of the service compete for messages the same way Kafka consumers
// in one group do. A message is acknowledged after its handler returns,
// whatever the outcome: retries are owned by command.Router, which
// republishes failed envelopes itself. Messages left pending by a crashed
// consumer are reclaimed with XAUTOCLAIM once they have been idle for
// ClaimMinIdle.
//
//	client, _ := redis.Connect(ctx, redisCfg) // integration/database/redis
//	b := streams.New(client, streams.WithGroup("clinicflow"), streams.WithLogger(log))
//	router := command.NewRouter(b)
//	g.Go(func() error { return b.Subscribe(ctx, "appointment-commands", router.Consume("appointment-commands")) })
package redis
