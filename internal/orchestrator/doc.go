// Package orchestrator is the engine façade consumed by the presentation
// layer. It owns every task: submission, cancellation, status, listing, and
// the worker-side execution path that invokes models, accounts cost,
// verifies output, and bridges completed results into the knowledge store.
// No other component mutates a task except through this package's store.
package orchestrator
