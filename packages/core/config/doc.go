// Package config handles configuration loading and management for hitmux.
//
// It provides functionality for:
//   - Loading configuration from .hitmux.yaml, .hitmux.yml or hitmux.yaml files
//   - Default configuration values
//   - Converting the configuration into engine options, request defaults and
//     share settings for a mux.Context
package config
