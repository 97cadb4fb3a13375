// Package testutil provides deterministic fakes for the billing engine:
// a scripted billing client, a manually driven network watcher, and a
// recording subscriber. Recorded calls carry logical sequence numbers
// instead of wall-clock times.
package testutil
