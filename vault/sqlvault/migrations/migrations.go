// Package migrations embeds the SQL schema for the sql vault.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
