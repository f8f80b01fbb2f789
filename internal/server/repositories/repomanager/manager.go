package repomanager

import (
	"context"
	"database/sql"

	"github.com/alprslanymeria/oauthserver/internal/dbx"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/passkeys"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/refreshtokens"
	"github.com/alprslanymeria/oauthserver/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// the same code against *sql.DB or inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Passkeys(db dbx.DBTX) passkeys.Repository
}
