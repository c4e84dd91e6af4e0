package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cluvo-ai/cluvo/internal/db"
	"github.com/cluvo-ai/cluvo/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	id               TEXT PRIMARY KEY,
	idea_id          TEXT NOT NULL,
	interview_id     TEXT NOT NULL,
	type             TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	supersedes_id    TEXT NOT NULL DEFAULT '',
	data             JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS canvases (
	idea_id    TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS canvas_changes (
	id         TEXT PRIMARY KEY,
	idea_id    TEXT NOT NULL,
	version    INTEGER NOT NULL,
	data       JSONB NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_insights_idea ON insights(idea_id, created_at);
CREATE INDEX IF NOT EXISTS idx_insights_supersedes ON insights(supersedes_id);
CREATE INDEX IF NOT EXISTS idx_canvas_changes_idea ON canvas_changes(idea_id, version DESC);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveRun upserts run unless the stored copy is terminal.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
		 WHERE runs.status NOT IN ('completed', 'failed')`,
		run.ID, string(run.Status), data, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunFinalized, "postgres: save run %s", run.ID)
	}
	return nil
}

// LoadRun returns the run or ErrNotFound.
func (s *PostgresStore) LoadRun(ctx context.Context, runID string) (*model.Run, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM runs WHERE id = $1`, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load run %s", runID)
	}
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run")
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	var runs []model.Run
	err := s.queryJSON(ctx,
		`SELECT data FROM runs WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		[]any{string(filter.Status), limitOr(filter.Limit), max(filter.Offset, 0)},
		func(data []byte) error {
			var r model.Run
			if err := json.Unmarshal(data, &r); err != nil {
				return eris.Wrap(err, "postgres: unmarshal run")
			}
			runs = append(runs, r)
			return nil
		})
	return runs, err
}

// SaveInsight inserts an insight. Existing ids are never overwritten.
func (s *PostgresStore) SaveInsight(ctx context.Context, in model.ExtractedInsight) error {
	data, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal insight")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO insights (id, idea_id, interview_id, type, confidence_score, supersedes_id, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
		in.ID, in.IdeaID, in.InterviewID, string(in.Type), in.ConfidenceScore, in.SupersedesID, data, in.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save insight %s", in.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInsightExists, "postgres: insight %s", in.ID)
	}
	return nil
}

// LoadInsights returns the insights with the given ids in creation order.
func (s *PostgresStore) LoadInsights(ctx context.Context, ids []string) ([]model.ExtractedInsight, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.insights(ctx, `SELECT data FROM insights WHERE id = ANY($1) ORDER BY created_at, id`, []any{ids})
}

// ListInsights returns an idea's insights in creation order.
func (s *PostgresStore) ListInsights(ctx context.Context, ideaID string, filter InsightFilter) ([]model.ExtractedInsight, error) {
	return s.insights(ctx,
		`SELECT data FROM insights
		 WHERE idea_id = $1 AND ($2 = '' OR type = $2) AND ($3 = '' OR interview_id = $3)
		   AND (NOT $4 OR id NOT IN (SELECT supersedes_id FROM insights WHERE idea_id = $1 AND supersedes_id <> ''))
		 ORDER BY created_at, id LIMIT $5`,
		[]any{ideaID, string(filter.Type), filter.InterviewID, filter.CurrentOnly, limitOr(filter.Limit)})
}

func (s *PostgresStore) insights(ctx context.Context, query string, args []any) ([]model.ExtractedInsight, error) {
	var out []model.ExtractedInsight
	err := s.queryJSON(ctx, query, args, func(data []byte) error {
		var in model.ExtractedInsight
		if err := json.Unmarshal(data, &in); err != nil {
			return eris.Wrap(err, "postgres: unmarshal insight")
		}
		out = append(out, in)
		return nil
	})
	return out, err
}

// LoadCanvas returns the current canvas snapshot.
func (s *PostgresStore) LoadCanvas(ctx context.Context, ideaID string) (model.Canvas, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM canvases WHERE idea_id = $1`, ideaID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewCanvas(ideaID), nil
	}
	if err != nil {
		return model.Canvas{}, eris.Wrapf(err, "postgres: load canvas %s", ideaID)
	}
	var c model.Canvas
	if err := json.Unmarshal(data, &c); err != nil {
		return model.Canvas{}, eris.Wrap(err, "postgres: unmarshal canvas")
	}
	return c, nil
}

// ApplyCanvasDelta stores next and the change log in one transaction.
func (s *PostgresStore) ApplyCanvasDelta(ctx context.Context, next model.Canvas, delta model.CanvasDelta) error {
	if err := checkDelta(next, delta); err != nil {
		return err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal canvas")
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var tag pgconn.CommandTag
		if delta.BaseVersion == 0 {
			tag, err = tx.Exec(ctx,
				`INSERT INTO canvases (idea_id, version, data, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (idea_id) DO NOTHING`,
				next.IdeaID, next.Version, data, next.UpdatedAt,
			)
		} else {
			tag, err = tx.Exec(ctx,
				`UPDATE canvases SET version = $1, data = $2, updated_at = $3 WHERE idea_id = $4 AND version = $5`,
				next.Version, data, next.UpdatedAt, next.IdeaID, delta.BaseVersion,
			)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: write canvas %s", next.IdeaID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrVersionConflict, "postgres: canvas %s base version %d", next.IdeaID, delta.BaseVersion)
		}

		for _, ch := range delta.Changes {
			chData, err := json.Marshal(ch)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal change")
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO canvas_changes (id, idea_id, version, data, applied_at) VALUES ($1, $2, $3, $4, $5)`,
				ch.ID, next.IdeaID, next.Version, chData, ch.AppliedAt,
			); err != nil {
				return eris.Wrapf(err, "postgres: insert change %s", ch.ID)
			}
		}
		return nil
	})
}

// ListCanvasChanges returns the newest changes first.
func (s *PostgresStore) ListCanvasChanges(ctx context.Context, ideaID string, limit int) ([]model.AppliedChange, error) {
	var out []model.AppliedChange
	err := s.queryJSON(ctx,
		`SELECT data FROM canvas_changes WHERE idea_id = $1 ORDER BY version DESC, applied_at DESC, id LIMIT $2`,
		[]any{ideaID, limitOr(limit)},
		func(data []byte) error {
			var ch model.AppliedChange
			if err := json.Unmarshal(data, &ch); err != nil {
				return eris.Wrap(err, "postgres: unmarshal change")
			}
			out = append(out, ch)
			return nil
		})
	return out, err
}

func (s *PostgresStore) queryJSON(ctx context.Context, query string, args []any, fn func([]byte) error) error {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "postgres: query")
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return eris.Wrap(err, "postgres: scan")
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "postgres: iterate")
}
