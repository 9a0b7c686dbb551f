package ratelimit

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore backs the limiter with a shared table so counts stay exact
// across concurrently running instances. One upsert per hit; the window
// rollover decision happens inside the statement, so increments cannot race.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to the counter store and ensures its schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing handle. Used by tests with sqlmock.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		create table if not exists rate_limits (
			client_key  text primary key,
			count       int not null,
			window_ends timestamptz not null
		)`)
	return err
}

const incrQuery = `
	insert into rate_limits (client_key, count, window_ends)
	values ($1, 1, now() + make_interval(secs => $2))
	on conflict (client_key) do update set
		count = case
			when rate_limits.window_ends <= now() then 1
			else rate_limits.count + 1
		end,
		window_ends = case
			when rate_limits.window_ends <= now() then excluded.window_ends
			else rate_limits.window_ends
		end
	returning count`

// Incr counts one hit for key within the current window.
func (s *PostgresStore) Incr(ctx context.Context, key string, window time.Duration) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, incrQuery, key, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Ping reports whether the backing store is reachable. Feeds /readyz.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }
