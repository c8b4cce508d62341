// Package config provides type-safe environment variable loading with caching
// using Go generics. Each configuration type is loaded once and cached for
// subsequent calls.
//
// The package loads a .env file on first use (missing files are ignored) and
// uses caarlos0/env to parse environment variables into struct fields:
//
//	type RouterConfig struct {
//		MaxRetries int    `env:"COMMAND_MAX_RETRIES" envDefault:"5"`
//		Topic      string `env:"COMMAND_TOPIC" envDefault:"appointment-commands"`
//	}
//
//	var cfg RouterConfig
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
// Different types are cached independently.
package config
