// Package httpserver is the admin REST API of flolog: log management,
// appends, lag and group inspection, an SSE tail and Prometheus metrics.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Registerer: reg})
//	s := httpserver.New(rt, rt.Logger(), reg)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
