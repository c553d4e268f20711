// Package runner executes batch files through a mux.Context.
//
// It provides functionality for:
//   - Building a context from configuration: engine options, request
//     defaults and an optional share
//   - Running a batch once or repeatedly and parsing its handles
//   - Extracting values and validating bodies against a JSON Schema
//   - Recording every batch in a stats collector
package runner
