// Package processor hosts the workers that run approved request executions.
// Each worker consumes dispatch tasks from a queue and hands the request id
// to the engine's execution handler; only errors marked Transient are
// redelivered according to the retry policy.
package processor
