// Package worker provides the background work queue: a fixed pool of
// goroutines that runs cache writes and other blocking I/O off the caller's
// goroutine, with a bounded drain on shutdown.
package worker
