// Package runtime wires config, logging, metrics and a log backend into a
// single flolog instance. It exposes Open/Close, a health check and the
// streamlog.Manager used by the servers and the CLI.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	m := rt.Manager()
//	_, _ = m.CreateIfNotExists("orders", 4)
//	app, _ := m.GetAppender("orders")
//	_, _ = app.AppendKey("customer-7", []byte("hello"))
package runtime
