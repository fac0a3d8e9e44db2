// Package store persists the drip engine's state in SQLite.
//
// The store is the single source of truth. All mutations go through the
// methods here, and the invariants a race could break are enforced with
// unique constraints rather than application logic:
//
//   - one active step timer per (user, order) pair (partial unique index)
//   - one delivery log row per (timer, template, delay) combination
//   - one delivery log row per (template, user, order) on the direct path
//
// Claim-style writes (delivery log inserts, drip message claims) return an
// explicit boolean so callers can tell "I won" from "someone else already
// did this" without error-driven control flow.
package store
