// Package metrics exposes component counters to Prometheus.
//
// Components in this module keep their own atomic counters and expose a
// Stats snapshot. Registry turns those snapshots into CounterFunc and
// GaugeFunc collectors so nothing has to be counted twice:
//
//	m := metrics.New("clinicflow")
//	m.MustCounter("command", "retried_total", "Commands republished for retry.", func() int64 {
//		return router.Stats().Retried
//	})
//	mux.Handle("GET /metrics", m.Handler())
package metrics
