// Package config loads and validates FermentWatch configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then FERMENTWATCH_* environment variables. Tokens and passwords
// should come from the environment.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	interval := cfg.PollInterval()
package config
