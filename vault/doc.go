// Package vault defines the secret store consumed by the verification
// managers, together with an in-memory implementation and an encrypting
// wrapper. Durable backends live in the redisvault and sqlvault
// subpackages.
package vault
