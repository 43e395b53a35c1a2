// Package migrations registers the Go-coded goose migrations of the order
// store. FS lets goose find them without depending on the working directory.
package migrations

import "embed"

//go:embed *.go
var FS embed.FS
