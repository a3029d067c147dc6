// Package config handles configuration loading, parsing, and validation
// from various sources (defaults, an optional YAML file, environment variables
// prefixed with LUMIERE_). It provides type-safe access to the settings of the
// HTTP server, the generation worker, the status stream and the external
// pipeline while keeping configuration details separate from business logic.
package config
