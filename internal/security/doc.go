// Package security derives a read-only summary of the protections an engine
// configuration enables. It has no dependency on the root package.
package security
