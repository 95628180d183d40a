// Package rate provides fixed-window hit counters backed by Redis or
// process memory. Limiters in internal/limiters build attempt policies on top.
package rate
