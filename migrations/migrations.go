// Package migrations embeds the goose migrations of every schema.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed campfin/*.sql
var FS embed.FS

// NewProvider returns a goose provider over the embedded migrations of dir.
func NewProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	sub, err := fs.Sub(FS, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	return goose.NewProvider(goose.DialectPostgres, db, sub)
}
