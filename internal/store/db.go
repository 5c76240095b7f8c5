package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/juju/errors"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres opens a pooled Postgres connection through the pgx stdlib
// driver and verifies it with a ping.
func OpenPostgres(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, errors.Annotate(err, "open postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Annotate(err, "ping postgres")
	}
	return db, nil
}
