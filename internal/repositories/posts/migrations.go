package posts

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/dmitrijs2005/postkeeper/internal/dbx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema for dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	dir := "migrations/sqlite"
	gooseDialect := "sqlite3"
	if dialect == dbx.DialectPostgres {
		dir = "migrations/postgres"
		gooseDialect = "pgx"
	}

	sub, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return err
	}
	goose.SetBaseFS(sub)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
