package runsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mediachain/internal/chain"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Ledger records run history in SQLite.
type Ledger struct {
	db   *sql.DB
	path string
}

// RunSummary is one ledger row.
type RunSummary struct {
	ID          int64
	JobID       string
	EpisodeID   string
	ContentHash string
	ConfigHash  string
	Success     bool
	ErrorStep   string
	Error       string
	CacheHits   int
	CacheMisses int
	StepsFailed int
	QualityTier string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// StepRow is one recorded step invocation of a run.
type StepRow struct {
	Step       string
	CacheHit   bool
	CacheKey   string
	InputHash  string
	OutputHash string
	Duration   time.Duration
}

// OpenLedger opens or creates the ledger database at path and applies
// migrations.
func OpenLedger(path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("runsink: ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("runsink: create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	ledger := &Ledger{db: db, path: path}
	if err := ledger.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// Path returns the database location.
func (l *Ledger) Path() string { return l.path }

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Persist appends the run and its step metrics in one transaction.
func (l *Ledger) Persist(ctx context.Context, record chain.Record) error {
	if record.Result == nil {
		return errors.New("runsink: record has no result")
	}
	return retryOnBusy(ctx, func() error { return l.insert(ctx, record) })
}

func (l *Ledger) insert(ctx context.Context, record chain.Record) error {
	meta := record.Result.Metadata
	tier := ""
	if record.Result.Quality != nil {
		tier = string(record.Result.Quality.OverallTier)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (
            job_id, episode_id, content_hash, config_hash, success, error_step, error_message,
            cache_hits, cache_misses, steps_failed, quality_tier, started_at, completed_at, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Context.JobID,
		nullableString(record.Context.EpisodeID),
		record.Context.ContentHash,
		record.Context.ConfigHash,
		boolToInt(record.Result.Success),
		nullableString(record.Result.ErrorStep),
		nullableString(record.Result.Error),
		meta.CacheHits,
		meta.CacheMisses,
		len(meta.StepsFailed),
		nullableString(tier),
		meta.StartedAt.UTC().Format(time.RFC3339Nano),
		meta.CompletedAt.UTC().Format(time.RFC3339Nano),
		meta.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	for i, m := range meta.Metrics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_steps (
                run_id, position, step, cache_hit, cache_key, input_hash, output_hash, duration_ms
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, m.Step, boolToInt(m.CacheHit), m.CacheKey,
			nullableString(m.InputHash), nullableString(m.OutputHash), m.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert run step %s: %w", m.Step, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Recent returns the newest runs, optionally filtered by job id.
func (l *Ledger) Recent(ctx context.Context, jobID string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, job_id, episode_id, content_hash, config_hash, success, error_step, error_message,
        cache_hits, cache_misses, steps_failed, quality_tier, started_at, completed_at, duration_ms
        FROM runs`
	args := []any{}
	if strings.TrimSpace(jobID) != "" {
		query += " WHERE job_id = ?"
		args = append(args, strings.TrimSpace(jobID))
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			run                      RunSummary
			episode, errStep, errMsg sql.NullString
			tier                     sql.NullString
			success                  int
			startedAt, completedAt   string
			durationMS               int64
		)
		if err := rows.Scan(&run.ID, &run.JobID, &episode, &run.ContentHash, &run.ConfigHash, &success,
			&errStep, &errMsg, &run.CacheHits, &run.CacheMisses, &run.StepsFailed, &tier,
			&startedAt, &completedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.EpisodeID = episode.String
		run.ErrorStep = errStep.String
		run.Error = errMsg.String
		run.QualityTier = tier.String
		run.Success = success != 0
		run.StartedAt = parseTime(startedAt)
		run.CompletedAt = parseTime(completedAt)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Steps returns the recorded step invocations of a run in execution order.
func (l *Ledger) Steps(ctx context.Context, runID int64) ([]StepRow, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT step, cache_hit, cache_key, input_hash, output_hash, duration_ms
        FROM run_steps WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRow
	for rows.Next() {
		var (
			step                  StepRow
			hit                   int
			inputHash, outputHash sql.NullString
			durationMS            int64
		)
		if err := rows.Scan(&step.Step, &hit, &step.CacheKey, &inputHash, &outputHash, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run step: %w", err)
		}
		step.CacheHit = hit != 0
		step.InputHash = inputHash.String
		step.OutputHash = outputHash.String
		step.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
