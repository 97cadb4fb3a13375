// Package network tracks outbound connectivity and reports edge-triggered
// availability changes to subscribers.
package network
