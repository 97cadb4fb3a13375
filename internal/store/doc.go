// Package store provides the SQLite-backed local purchase cache.
//
// The cache holds two tables:
//   - products: Product metadata keyed by product_id
//   - purchases: Purchase records keyed by purchase_token
//
// Every write is an upsert: the latest write for a key replaces the row.
// Purchases reference products by id only; orphaned purchases are kept
// and simply do not appear in the presentation join.
//
// # Deterministic Query Results
//
// List queries order by their key with COLLATE BINARY so results are
// identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
