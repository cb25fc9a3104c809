// Package preflight checks that the environment can build the knowledge
// base before a long rebuild starts.
//
// The package validates:
//   - The raw content root exists and holds supported files
//   - Disk space where the collection is written (minimum 100MB)
//   - Write permissions in the collection directory
//   - File descriptor limits (minimum 1024)
//   - The embedding provider is usable and the tokenizer loads
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
