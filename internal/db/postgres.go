package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var Pool *pgxpool.Pool

var (
	newPool  = pgxpool.New
	pingPool = func(ctx context.Context, p *pgxpool.Pool) error {
		return p.Ping(ctx)
	}
)

// InitPostgres opens the shared pool for dsn.
func InitPostgres(ctx context.Context, dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("DATABASE_URL is required")
	}
	p, err := newPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pingPool(ctx, p); err != nil {
		p.Close()
		return fmt.Errorf("connect to postgres: %w", err)
	}
	Pool = p
	log.Info().Msg("connected to postgres")
	return nil
}

func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}
