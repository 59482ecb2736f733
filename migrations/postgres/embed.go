// Package migrations embebe los archivos SQL del esquema.
// Formato de archivo: {version}_{name}.sql (ej: 0001_init.sql).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
