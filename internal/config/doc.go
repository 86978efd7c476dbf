// Package config loads, validates, and defaults quill's TOML configuration.
package config
