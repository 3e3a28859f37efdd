// Package model is the boundary to external model providers. The engine
// never performs inference itself; it sends a prompt through an Invoker and
// gets back text, token usage, and cost. Transient provider failures are
// retried with backoff by the Retry decorator before they surface as task
// failures.
package model
