// Package ir provides the purchase domain model shared by every billsync package.
//
// This package contains type definitions and their canonical encodings only.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Purchase tokens are the durable dedup key for purchase records
//   - Product identifiers are unique across product kinds
//   - Timestamps are epoch milliseconds (int64), never floats
//   - All JSON tags use snake_case
package ir
