// Package migrations embeds the SQL schema so the server binary can migrate
// a database without shipping the files separately.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
