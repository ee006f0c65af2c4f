// Package migrations embeds the offline cache schema so the binary carries
// its own migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
