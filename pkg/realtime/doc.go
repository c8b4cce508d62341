// Package realtime pushes events to connected users over websockets.
//
// A Hub keeps a sharded registry from user id to live connections. Each shard
// has its own sync.RWMutex so connects and sends for different users rarely
// contend. Send is a no-op for users without a live connection: the caller
// has already persisted whatever it pushes.
//
//	hub := realtime.NewHub(realtime.WithLogger(log))
//	mux.Handle("GET /ws", realtime.Handler(hub, realtime.WithAllowAnyOrigin()))
//
//	_ = hub.Send(ctx, userID, "notification.new", n)
//
// Frames are JSON objects: {"event": "...", "payload": ..., "sentAt": "..."}.
package realtime
