// Package domain holds the core types of the drip-messaging engine and the
// literal business tables that drive it: the order status enumeration, the
// timer step keys with their product-type fan-out, the timer/template step
// compatibility relation, and the map from a new status to the message tags
// it obsoletes.
//
// The tables are authoritative business data. They are written out as literal
// Go maps rather than derived from naming conventions, and every lookup
// reports whether the input was covered. Callers must treat an uncovered
// status or step as "unmapped" and must not guess a default.
package domain
