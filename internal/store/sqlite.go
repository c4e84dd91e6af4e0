package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection also serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	id               TEXT PRIMARY KEY,
	idea_id          TEXT NOT NULL,
	interview_id     TEXT NOT NULL,
	type             TEXT NOT NULL,
	confidence_score REAL NOT NULL,
	supersedes_id    TEXT NOT NULL DEFAULT '',
	data             TEXT NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS canvases (
	idea_id    TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS canvas_changes (
	id         TEXT PRIMARY KEY,
	idea_id    TEXT NOT NULL,
	version    INTEGER NOT NULL,
	data       TEXT NOT NULL,
	applied_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_insights_idea ON insights(idea_id, created_at);
CREATE INDEX IF NOT EXISTS idx_insights_supersedes ON insights(supersedes_id);
CREATE INDEX IF NOT EXISTS idx_canvas_changes_idea ON canvas_changes(idea_id, version);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun upserts run unless the stored copy is terminal.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data, updated_at = excluded.updated_at
		 WHERE runs.status NOT IN ('completed', 'failed')`,
		run.ID, string(run.Status), string(data), formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save run %s", run.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunFinalized, "sqlite: save run %s", run.ID)
	}
	return nil
}

// LoadRun returns the run or ErrNotFound.
func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (*model.Run, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load run %s", runID)
	}
	var run model.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run")
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT data FROM runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limitOr(filter.Limit), max(filter.Offset, 0))

	var runs []model.Run
	err := s.queryJSON(ctx, query, args, func(data []byte) error {
		var r model.Run
		if err := json.Unmarshal(data, &r); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal run")
		}
		runs = append(runs, r)
		return nil
	})
	return runs, err
}

// SaveInsight inserts an insight. Existing ids are never overwritten.
func (s *SQLiteStore) SaveInsight(ctx context.Context, in model.ExtractedInsight) error {
	data, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal insight")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO insights (id, idea_id, interview_id, type, confidence_score, supersedes_id, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		in.ID, in.IdeaID, in.InterviewID, string(in.Type), in.ConfidenceScore, in.SupersedesID, string(data), formatTime(in.CreatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save insight %s", in.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrInsightExists, "sqlite: insight %s", in.ID)
	}
	return nil
}

// LoadInsights returns the insights with the given ids in creation order.
// Unknown ids are skipped.
func (s *SQLiteStore) LoadInsights(ctx context.Context, ids []string) ([]model.ExtractedInsight, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT data FROM insights WHERE id IN (?` + strings.Repeat(", ?", len(ids)-1) + `) ORDER BY created_at, id`
	return s.insights(ctx, query, args)
}

// ListInsights returns an idea's insights in creation order.
func (s *SQLiteStore) ListInsights(ctx context.Context, ideaID string, filter InsightFilter) ([]model.ExtractedInsight, error) {
	query := `SELECT data FROM insights WHERE idea_id = ?`
	args := []any{ideaID}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.InterviewID != "" {
		query += ` AND interview_id = ?`
		args = append(args, filter.InterviewID)
	}
	if filter.CurrentOnly {
		query += ` AND id NOT IN (SELECT supersedes_id FROM insights WHERE idea_id = ? AND supersedes_id <> '')`
		args = append(args, ideaID)
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limitOr(filter.Limit))
	return s.insights(ctx, query, args)
}

func (s *SQLiteStore) insights(ctx context.Context, query string, args []any) ([]model.ExtractedInsight, error) {
	var out []model.ExtractedInsight
	err := s.queryJSON(ctx, query, args, func(data []byte) error {
		var in model.ExtractedInsight
		if err := json.Unmarshal(data, &in); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal insight")
		}
		out = append(out, in)
		return nil
	})
	return out, err
}

// LoadCanvas returns the current canvas snapshot.
func (s *SQLiteStore) LoadCanvas(ctx context.Context, ideaID string) (model.Canvas, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM canvases WHERE idea_id = ?`, ideaID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewCanvas(ideaID), nil
	}
	if err != nil {
		return model.Canvas{}, eris.Wrapf(err, "sqlite: load canvas %s", ideaID)
	}
	var c model.Canvas
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return model.Canvas{}, eris.Wrap(err, "sqlite: unmarshal canvas")
	}
	return c, nil
}

// ApplyCanvasDelta stores next and the change log in one transaction.
func (s *SQLiteStore) ApplyCanvasDelta(ctx context.Context, next model.Canvas, delta model.CanvasDelta) error {
	if err := checkDelta(next, delta); err != nil {
		return err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal canvas")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var res sql.Result
	if delta.BaseVersion == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO canvases (idea_id, version, data, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(idea_id) DO NOTHING`,
			next.IdeaID, next.Version, string(data), formatTime(next.UpdatedAt),
		)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE canvases SET version = ?, data = ?, updated_at = ? WHERE idea_id = ? AND version = ?`,
			next.Version, string(data), formatTime(next.UpdatedAt), next.IdeaID, delta.BaseVersion,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: write canvas %s", next.IdeaID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrVersionConflict, "sqlite: canvas %s base version %d", next.IdeaID, delta.BaseVersion)
	}

	for _, ch := range delta.Changes {
		chData, err := json.Marshal(ch)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal change")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO canvas_changes (id, idea_id, version, data, applied_at) VALUES (?, ?, ?, ?, ?)`,
			ch.ID, next.IdeaID, next.Version, string(chData), formatTime(ch.AppliedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert change %s", ch.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit canvas delta")
}

// ListCanvasChanges returns the newest changes first.
func (s *SQLiteStore) ListCanvasChanges(ctx context.Context, ideaID string, limit int) ([]model.AppliedChange, error) {
	var out []model.AppliedChange
	err := s.queryJSON(ctx,
		`SELECT data FROM canvas_changes WHERE idea_id = ? ORDER BY version DESC, applied_at DESC, id LIMIT ?`,
		[]any{ideaID, limitOr(limit)},
		func(data []byte) error {
			var ch model.AppliedChange
			if err := json.Unmarshal(data, &ch); err != nil {
				return eris.Wrap(err, "sqlite: unmarshal change")
			}
			out = append(out, ch)
			return nil
		})
	return out, err
}

func (s *SQLiteStore) queryJSON(ctx context.Context, query string, args []any, fn func([]byte) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: query")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return eris.Wrap(err, "sqlite: scan")
		}
		if err := fn([]byte(data)); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: iterate")
}

// formatTime renders t so that lexical order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
