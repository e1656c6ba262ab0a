package persist

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrationFS is the embedded migrations directory with the prefix stripped,
// the layout goose expects.
func migrationFS() (fs.FS, error) {
	return fs.Sub(migrations, "migrations")
}

// Migrate brings the schema up to date and returns the resulting version.
// Each applied migration is logged; an up-to-date schema logs nothing.
func (db *DB) Migrate(ctx context.Context) (int64, error) {
	fsys, err := migrationFS()
	if err != nil {
		return 0, fmt.Errorf("migrations fs: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		sqlDB.Close()
		return 0, fmt.Errorf("migration provider: %w", err)
	}
	defer provider.Close()

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		db.log.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("took", r.Duration))
	}
	return provider.GetDBVersion(ctx)
}
