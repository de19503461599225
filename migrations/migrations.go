// Package migrations embeds the analytics schema so the binary can apply it
// without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
