package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"headline-vol/internal/config"
	"headline-vol/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const usage = "usage: go run ./cmd/migrate [up|down|status|version] [steps]"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	initLoggerFunc = logger.Init
	openPool       = pgxpool.New
)

var fileRE = regexp.MustCompile(`^([0-9]+)_([a-z0-9_]+)\.(up|down)\.sql$`)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// conn is the part of pgxpool.Pool the runner needs.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type runner struct {
	db         conn
	migrations []migration
}

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	if err := initLoggerFunc(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}
	if len(os.Args) < 2 {
		log.Fatal().Msg(usage)
	}
	if err := cfg.Validate("DatabaseURL"); err != nil {
		log.Fatal().Err(err).Msg("DATABASE_URL is required")
	}

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		log.Fatal().Err(err).Msg("load migrations")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	r := &runner{db: pool, migrations: migrations}
	if err := r.ensureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure schema_migrations table")
	}
	if err := r.run(ctx, os.Args[1:]); err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("migrate failed")
	}
}

func (r *runner) run(ctx context.Context, args []string) error {
	applied, err := r.applied(ctx)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}

	switch args[0] {
	case "up":
		todo := pending(r.migrations, applied)
		for _, m := range todo {
			if err := r.apply(ctx, m.UpSQL, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
				return fmt.Errorf("version %d up: %w", m.Version, err)
			}
			log.Info().Int64("version", m.Version).Str("name", m.Name).Msg("applied")
		}
		log.Info().Int("applied", len(todo)).Msg("migrations up complete")
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil || steps <= 0 {
				return fmt.Errorf("invalid down steps %q", args[1])
			}
		}
		plan, err := rollbackPlan(r.migrations, applied, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := r.apply(ctx, m.DownSQL, `DELETE FROM schema_migrations WHERE version = $1`, m.Version); err != nil {
				return fmt.Errorf("version %d down: %w", m.Version, err)
			}
			log.Info().Int64("version", m.Version).Str("name", m.Name).Msg("rolled back")
		}
		log.Info().Int("rolled_back", len(plan)).Msg("migrations down complete")
	case "status":
		for _, m := range r.migrations {
			_, done := applied[m.Version]
			log.Info().Int64("version", m.Version).Str("name", m.Name).Bool("applied", done).Msg("migration")
		}
	case "version":
		v, ok := latest(r.migrations, applied)
		if !ok {
			log.Info().Msg("no migrations applied")
			return nil
		}
		log.Info().Int64("version", v.Version).Str("name", v.Name).Msg("current version")
	default:
		return fmt.Errorf("unknown command %q. %s", args[0], usage)
	}
	return nil
}

func (r *runner) ensureTable(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`)
	return err
}

func (r *runner) applied(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(versions))
	for _, v := range versions {
		out[v] = struct{}{}
	}
	return out, nil
}

// apply runs a migration body and its bookkeeping statement in one transaction.
func (r *runner) apply(ctx context.Context, body, bookkeeping string, args ...any) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, body); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, bookkeeping, args...)
		return err
	})
}

// pending lists migrations not yet applied, oldest first.
func pending(migrations []migration, applied map[int64]struct{}) []migration {
	var out []migration
	for _, m := range migrations {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// rollbackPlan picks the newest steps applied migrations, newest first.
func rollbackPlan(migrations []migration, applied map[int64]struct{}, steps int) ([]migration, error) {
	byVersion := make(map[int64]migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}
	versions := make([]int64, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	plan := make([]migration, 0, steps)
	for _, v := range versions {
		if len(plan) == steps {
			break
		}
		m, ok := byVersion[v]
		if !ok {
			return nil, fmt.Errorf("no migration source for applied version %d", v)
		}
		plan = append(plan, m)
	}
	return plan, nil
}

func latest(migrations []migration, applied map[int64]struct{}) (migration, bool) {
	for i := len(migrations) - 1; i >= 0; i-- {
		if _, ok := applied[migrations[i].Version]; ok {
			return migrations[i], true
		}
	}
	return migration{}, false
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	paths, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no migration files found")
	}

	index := make(map[int64]*migration)
	for _, p := range paths {
		parts := fileRE.FindStringSubmatch(path.Base(p))
		if parts == nil {
			return nil, fmt.Errorf("invalid migration filename: %s", p)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version in %s: %w", p, err)
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", p, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("empty migration file: %s", p)
		}

		m, ok := index[version]
		if !ok {
			m = &migration{Version: version, Name: parts[2]}
			index[version] = m
		} else if m.Name != parts[2] {
			return nil, fmt.Errorf("conflicting names for version %d: %s vs %s", version, m.Name, parts[2])
		}
		target := &m.UpSQL
		if parts[3] == "down" {
			target = &m.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}

	out := make([]migration, 0, len(index))
	for _, m := range index {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration version %d must include both up and down files", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
