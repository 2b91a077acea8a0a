// Package migrations embeds the bridge's SQL schema so the binary can
// migrate a fresh database without the files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
