// Package cmd implements the hitmux CLI commands using Cobra.
//
// Available commands:
//   - fetch: Send URLs or batch files concurrently through one multiplexing context
//   - serve: Start the local mock server used for trying batches out
//   - version: Show hitmux version information
//
// fetch supports batch files with variables, JSON/TAP output, value
// extraction, JSON Schema validation, latency statistics and watch mode.
package cmd
