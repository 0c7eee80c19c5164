// Package config loads clitutor's settings.
//
// Sources are applied in order, later ones overriding earlier ones:
//
//	┌──────────────────────────────┐
//	│  4. Environment (CLITUTOR_*) │  ← Highest priority
//	├──────────────────────────────┤
//	│  3. .env file                │  ← only sets variables not already set
//	├──────────────────────────────┤
//	│  2. Config file              │  ← clitutor.toml / clitutor.yaml
//	├──────────────────────────────┤
//	│  1. Built-in defaults        │  ← Lowest priority
//	└──────────────────────────────┘
//
// Environment variables are named after the section and field, for example
// CLITUTOR_SANDBOX_KIND or CLITUTOR_EXECUTOR_TIMEOUT.
//
// # Basic Usage
//
//	cfg, err := config.Load(config.LoadOptions{Path: "clitutor.toml"})
//	if err != nil {
//	    return err
//	}
//
// Watch reloads the file when it changes:
//
//	go config.Watch(ctx, opts, func(cfg *config.Config, err error) { ... })
package config
