// Package testutil provides deterministic stand-ins for the engine's
// nondeterministic inputs: a manual clock and a fixed ID generator.
package testutil
