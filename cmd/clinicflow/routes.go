package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/clinicflow/clinicflow/core/health"
	"github.com/clinicflow/clinicflow/core/logger"
	"github.com/clinicflow/clinicflow/pkg/metrics"
	"github.com/clinicflow/clinicflow/pkg/realtime"
)

func routes(log *slog.Logger, hub *realtime.Hub, reg *metrics.Registry, checks []health.Check, appts appointmentSubmitter, feed notificationFeed) http.Handler {
	wslog := log.With(logger.Component("realtime"))

	mux := http.NewServeMux()
	mux.Handle("GET /ws", realtime.Handler(hub,
		realtime.WithOnConnect(func(ctx context.Context, c *realtime.Conn) {
			wslog.DebugContext(ctx, "client connected", logger.UserID(c.UserID()))
		}),
		realtime.WithOnDisconnect(func(ctx context.Context, c *realtime.Conn) {
			wslog.DebugContext(ctx, "client disconnected", logger.UserID(c.UserID()))
		}),
		realtime.WithErrorHandler(func(ctx context.Context, err error) {
			wslog.WarnContext(ctx, "websocket error", logger.Error(err))
		}),
	))
	mux.Handle("GET /health/live", health.Liveness())
	mux.Handle("GET /health/ready", health.Readiness(log, checks...))
	mux.Handle("GET /metrics", reg.Handler())

	a := &api{log: log.With(logger.Component("api")), appts: appts, feed: feed}
	a.register(mux)
	return mux
}
