// Package billing defines the contract of the remote billing service and
// the taxonomy of its response codes.
//
// The service itself is an external collaborator. This package never
// implements its protocol; it describes the calls the engine makes and
// how each response code is handled.
package billing
