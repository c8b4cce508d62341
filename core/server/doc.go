// Package server wraps http.Server with graceful shutdown and errgroup
// friendly lifecycle.
//
//	srv, err := server.NewFromConfig(cfg, server.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	g.Go(srv.Run(ctx, mux))
//
// Run blocks until ctx is cancelled, then shuts the server down within the
// configured timeout. Open websocket connections are hijacked and therefore
// not covered by Shutdown; close them separately (realtime.Hub.Close).
package server
