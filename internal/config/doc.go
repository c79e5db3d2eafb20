// Package config provides loading and environment overlay for flolog runtime
// configuration. It exposes a Default() baseline that callers refine from a
// JSON or YAML file and FLOLOG_* environment variables.
//
// Example:
//
//	cfg, err := config.Load("/etc/flolog.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if cfg.DataDir == "" {
//	    cfg.DataDir = config.DefaultDataDir()
//	}
//	rt, err := runtime.Open(runtime.Options{Config: cfg})
package config
