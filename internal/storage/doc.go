// Package storage persists schedule and device documents and exposes the
// conditional-write primitive the fire guard relies on.
//
// Drivers:
//   - "sqlite": single-file database (default)
//   - "memory": in-process store for tests and throwaway runs
//
// Any number of evaluator processes may share the sqlite file; ClaimFire
// is the only coordination they need.
package storage
