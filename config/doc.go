// Package config loads switchboard configuration from defaults, an optional
// YAML file, and environment variable overrides, in that order.
package config
