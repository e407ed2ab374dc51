package programstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const driverPgx = "pgx"

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverPgx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open program store: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping program store: %w", err)
	}
	return db, nil
}
