// Package limiters provides verification attempt limiters built on top of the
// internal/rate counters.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// Limiters only count. The factor manager decides the consequence of an
// exhausted budget.
package limiters
