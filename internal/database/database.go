package database

import (
	"context"
	"errors"

	"github.com/prayatna/fraudscreen/backend/internal/util"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Connect opens the connection pool against DATABASE_URL.
func Connect(ctx context.Context) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
}

// Migrate applies pending schema migrations. Running against an up-to-date
// schema is a no-op.
func Migrate() error {
	source := util.GetEnvString("MIGRATIONS_URL", "file://migrations")

	m, err := migrate.New(source, util.GetEnv("DATABASE_URL"))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[Database] Schema is up to date")
			return nil
		}
		return err
	}

	logger.Info("[Database] Migrations applied")
	return nil
}
