// Package repomanager vends repository implementations bound to a DBTX and
// owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"uplink/internal/dbx"
	"uplink/internal/server/repositories/files"
	"uplink/internal/server/repositories/links"
	"uplink/internal/server/repositories/sessions"
)

// RepositoryManager abstracts the persistence backend so services can run
// repositories on either a connection or a transaction.
type RepositoryManager interface {
	Links(db dbx.DBTX) links.Repository
	Files(db dbx.DBTX) files.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
