// Package config loads Osservatorio's configuration via koanf v2,
// layering built-in defaults, an optional config.yaml, and environment
// variables prefixed OSSERVATORIO_. See Load and Default.
package config
