// Package store persists completed layout runs in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/onnwee/bhtree/internal/circuitbreaker"
	"github.com/onnwee/bhtree/internal/metrics"
	"github.com/onnwee/bhtree/internal/tracing"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("store: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS layout_runs (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT NOT NULL,
	request_hash  TEXT NOT NULL UNIQUE,
	node_count    INTEGER NOT NULL,
	edge_count    INTEGER NOT NULL,
	iterations    INTEGER NOT NULL,
	forced_merges INTEGER NOT NULL DEFAULT 0,
	params        JSONB,
	positions     JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS layout_runs_created_at_idx ON layout_runs (created_at DESC);
`

// Run is a persisted layout result.
type Run struct {
	ID           int64           `json:"id"`
	RunID        string          `json:"run_id"`
	RequestHash  string          `json:"request_hash"`
	NodeCount    int             `json:"node_count"`
	EdgeCount    int             `json:"edge_count"`
	Iterations   int             `json:"iterations"`
	ForcedMerges int             `json:"forced_merges"`
	Params       json.RawMessage `json:"params,omitempty"`
	Positions    [][2]float64    `json:"positions,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Config tunes the connection pool and circuit breaker.
type Config struct {
	MaxOpenConns     int
	BreakerFailures  int
	BreakerResetTime time.Duration
}

// Store is a Postgres-backed run store. Every query goes through a circuit
// breaker so a down database fails fast instead of stalling requests.
type Store struct {
	db      *sql.DB
	breaker *circuitbreaker.CircuitBreaker
}

// Open connects to Postgres at url and verifies the connection.
func Open(ctx context.Context, url string, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, cfg), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, cfg Config) *Store {
	return &Store{
		db: db,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "store",
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerResetTime,
			IsFailure:        isFailure,
		}),
	}
}

// isFailure reports whether err says something about the database's health
// rather than about the request.
func isFailure(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 22 is bad data, class 23 an integrity violation
		switch pqErr.Code.Class() {
		case "22", "23":
			return false
		}
	}
	return true
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Breaker exposes the circuit breaker for health reporting.
func (s *Store) Breaker() *circuitbreaker.CircuitBreaker { return s.breaker }

func (s *Store) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "store."+op)
	defer span.End()

	start := time.Now()
	err := s.breaker.Call(func() error { return fn(ctx) })
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.StoreOperationErrors.WithLabelValues(op).Inc()
		tracing.RecordError(span, err)
	}
	return err
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.do(ctx, "migrate", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		return nil
	})
}

// SaveRun upserts r keyed by its request hash and returns the stored row.
func (s *Store) SaveRun(ctx context.Context, r Run) (Run, error) {
	positions, err := json.Marshal(r.Positions)
	if err != nil {
		return Run{}, fmt.Errorf("encode positions: %w", err)
	}
	params := pqtype.NullRawMessage{RawMessage: r.Params, Valid: len(r.Params) > 0}

	err = s.do(ctx, "save_run", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO layout_runs (run_id, request_hash, node_count, edge_count, iterations, forced_merges, params, positions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (request_hash) DO UPDATE SET
				run_id = EXCLUDED.run_id,
				iterations = EXCLUDED.iterations,
				forced_merges = EXCLUDED.forced_merges,
				params = EXCLUDED.params,
				positions = EXCLUDED.positions,
				created_at = now()
			RETURNING id, created_at`,
			r.RunID, r.RequestHash, r.NodeCount, r.EdgeCount, r.Iterations, r.ForcedMerges, params, positions,
		).Scan(&r.ID, &r.CreatedAt)
	})
	if err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	return r, nil
}

// GetRun returns the run with the given id, positions included.
func (s *Store) GetRun(ctx context.Context, id int64) (Run, error) {
	var (
		r         Run
		params    pqtype.NullRawMessage
		positions []byte
	)
	err := s.do(ctx, "get_run", func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx, `
			SELECT id, run_id, request_hash, node_count, edge_count, iterations, forced_merges, params, positions, created_at
			FROM layout_runs WHERE id = $1`, id,
		).Scan(&r.ID, &r.RunID, &r.RequestHash, &r.NodeCount, &r.EdgeCount, &r.Iterations, &r.ForcedMerges, &params, &positions, &r.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return Run{}, fmt.Errorf("get run %d: %w", id, err)
	}
	if params.Valid {
		r.Params = params.RawMessage
	}
	if err := json.Unmarshal(positions, &r.Positions); err != nil {
		return Run{}, fmt.Errorf("decode positions of run %d: %w", id, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first, without positions.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var runs []Run
	err := s.do(ctx, "list_runs", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, run_id, request_hash, node_count, edge_count, iterations, forced_merges, params, created_at
			FROM layout_runs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		runs = runs[:0]
		for rows.Next() {
			var (
				r      Run
				params pqtype.NullRawMessage
			)
			if err := rows.Scan(&r.ID, &r.RunID, &r.RequestHash, &r.NodeCount, &r.EdgeCount, &r.Iterations, &r.ForcedMerges, &params, &r.CreatedAt); err != nil {
				return err
			}
			if params.Valid {
				r.Params = params.RawMessage
			}
			runs = append(runs, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// CountRuns returns the number of stored runs.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	var n int64
	err := s.do(ctx, "count_runs", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT count(*) FROM layout_runs`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// PruneRuns deletes runs created before cutoff and returns how many went.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.do(ctx, "prune_runs", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM layout_runs WHERE created_at < $1`, cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return n, nil
}
