// Package scheduler admits tasks FIFO and dispatches them to workers under
// a parallelism cap. It owns the queue and the running-slot table; task
// status changes themselves go through the orchestrator's store, so the
// scheduler only ever handles task ids. Admission is re-evaluated whenever
// a slot frees, a task is enqueued, or the cost gate is lifted.
package scheduler
