// Package config provides centralized configuration management for the
// WealthPilot daemon. It loads a JSON configuration file, applies defaults
// for omitted fields, and honors a small set of environment overrides for
// deployment-time switches such as the real-estate feature flag.
package config
