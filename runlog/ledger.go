// Package runlog keeps a SQLite ledger of training runs. A Ledger is a
// pipeline.Observer: it records every finished stage, every candidate score
// or failure, and the model each run selected.
package runlog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/YuminosukeSato/mlpipe/pipeline"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS stages (
	run_id      TEXT    NOT NULL,
	stage       TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT
);
CREATE TABLE IF NOT EXISTS candidates (
	run_id    TEXT NOT NULL,
	candidate TEXT NOT NULL,
	position  INTEGER NOT NULL,
	r2        REAL,
	error     TEXT
);
CREATE TABLE IF NOT EXISTS selections (
	run_id     TEXT PRIMARY KEY,
	best_model TEXT,
	best_score REAL,
	threshold  REAL NOT NULL,
	accepted   INTEGER NOT NULL,
	error      TEXT
);
CREATE INDEX IF NOT EXISTS idx_stages_run ON stages(run_id);
CREATE INDEX IF NOT EXISTS idx_candidates_run ON candidates(run_id);
`

// Run summarizes one training run.
type Run struct {
	RunID     string
	BestModel string
	BestScore float64
	Threshold float64
	Accepted  bool
	Error     string
}

// CandidateResult is the outcome of one candidate in a run. Error is empty
// when the candidate was scored.
type CandidateResult struct {
	Name  string
	R2    float64
	Error string
}

// StageRecord is one finished stage of a run.
type StageRecord struct {
	Stage    string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// Ledger stores run history in a SQLite database.
type Ledger struct {
	db     *sql.DB
	logger log.Logger
	mu     sync.Mutex
}

var _ pipeline.Observer = (*Ledger)(nil)

// Open opens or creates the ledger database at path.
func Open(path string, logger log.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create ledger directory for %s", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "initialize ledger %s", path)
	}
	return &Ledger{db: db, logger: log.OrNop(logger)}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// OnStage implements pipeline.Observer. Write failures are logged and do
// not interrupt the run.
func (l *Ledger) OnStage(e pipeline.StageEvent) {
	if err := l.Record(context.Background(), e); err != nil {
		l.logger.Warn("ledger write failed", err, log.StageKey, e.Stage, log.RunIDKey, e.RunID)
	}
}

// Record stores e in a single transaction.
func (l *Ledger) Record(ctx context.Context, e pipeline.StageEvent) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin ledger transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO stages (run_id, stage, started_at, duration_ms, error) VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Stage, e.Started.UnixMilli(), e.Duration.Milliseconds(), errorText(e.Err),
	); err != nil {
		return errors.Wrap(err, "insert stage")
	}

	switch e.Stage {
	case pipeline.StageEvaluation:
		err = insertCandidates(ctx, tx, e)
	case pipeline.StageSelection:
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO selections (run_id, best_model, best_score, threshold, accepted, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.RunID, nullString(e.BestModel), nullScore(e.BestModel, e.BestScore), e.Threshold, e.Err == nil, errorText(e.Err),
		)
		if err != nil {
			err = errors.Wrap(err, "insert selection")
		}
	}
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit ledger transaction")
	}
	return nil
}

func insertCandidates(ctx context.Context, tx *sql.Tx, e pipeline.StageEvent) error {
	failures := make(map[string]error, len(e.Failures))
	for _, f := range e.Failures {
		failures[f.Candidate] = f.Err
	}
	for i, name := range e.Order {
		var r2 sql.NullFloat64
		if score, ok := e.Scores[name]; ok {
			r2 = sql.NullFloat64{Float64: score, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO candidates (run_id, candidate, position, r2, error) VALUES (?, ?, ?, ?, ?)`,
			e.RunID, name, i, r2, errorText(failures[name]),
		); err != nil {
			return errors.Wrapf(err, "insert candidate %s", name)
		}
	}
	return nil
}

// Runs returns every run that reached model selection, oldest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, best_model, best_score, threshold, accepted, error FROM selections ORDER BY rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			model, msg sql.NullString
			score      sql.NullFloat64
		)
		if err := rows.Scan(&r.RunID, &model, &score, &r.Threshold, &r.Accepted, &msg); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.BestModel, r.BestScore, r.Error = model.String, score.Float64, msg.String
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "iterate runs")
}

// Candidates returns the candidate outcomes of runID in declared order.
func (l *Ledger) Candidates(ctx context.Context, runID string) ([]CandidateResult, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT candidate, r2, error FROM candidates WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query candidates")
	}
	defer rows.Close()

	var out []CandidateResult
	for rows.Next() {
		var (
			c   CandidateResult
			r2  sql.NullFloat64
			msg sql.NullString
		)
		if err := rows.Scan(&c.Name, &r2, &msg); err != nil {
			return nil, errors.Wrap(err, "scan candidate")
		}
		c.R2, c.Error = r2.Float64, msg.String
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate candidates")
}

// Stages returns the stages recorded for runID in execution order.
func (l *Ledger) Stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT stage, started_at, duration_ms, error FROM stages WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query stages")
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var (
			s          StageRecord
			started    int64
			durationMs int64
			msg        sql.NullString
		)
		if err := rows.Scan(&s.Stage, &started, &durationMs, &msg); err != nil {
			return nil, errors.Wrap(err, "scan stage")
		}
		s.Started = time.UnixMilli(started)
		s.Duration = time.Duration(durationMs) * time.Millisecond
		s.Error = msg.String
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate stages")
}

func errorText(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullScore(model string, score float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: score, Valid: model != ""}
}
