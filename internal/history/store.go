package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists runs and item outcomes in SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// timeLayout is fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Open creates or connects to the ledger at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
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

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun records the start of a batch and returns its generated ID.
func (s *Store) BeginRun(ctx context.Context, source, mode string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Source:    source,
		Mode:      mode,
		StartedAt: s.now().UTC(),
	}
	err := s.exec(ctx,
		`INSERT INTO runs (id, source, mode, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Source, run.Mode, formatTime(run.StartedAt),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// RecordItem appends one item outcome to a run.
func (s *Store) RecordItem(ctx context.Context, rec ItemRecord) error {
	if rec.RunID == "" {
		return errors.New("item record missing run id")
	}
	warnings, err := marshalOptional(rec.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	stages, err := marshalOptional(rec.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = s.now()
	}
	err = s.exec(ctx,
		`INSERT INTO items (
            run_id, title, episode_title, source_path, final_path, status,
            failed_stage, error_kind, error_message, warnings_json, stages_json,
            started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		nullableString(rec.Title),
		nullableString(rec.EpisodeTitle),
		nullableString(rec.SourcePath),
		nullableString(rec.FinalPath),
		rec.Status,
		nullableString(rec.FailedStage),
		nullableString(rec.ErrorKind),
		nullableString(rec.ErrorMessage),
		warnings,
		stages,
		formatTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// FinishRun stamps the run's end time and totals.
func (s *Store) FinishRun(ctx context.Context, runID string, counts Counts) error {
	err := s.exec(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, skipped = ?, failed = ?, canceled = ? WHERE id = ?`,
		formatTime(s.now()),
		counts.Succeeded,
		counts.Skipped,
		counts.Failed,
		boolToInt(counts.Canceled),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, mode, started_at, finished_at, succeeded, skipped, failed, canceled
         FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run         Run
			startedRaw  string
			finishedRaw sql.NullString
			canceled    int
		)
		if err := rows.Scan(&run.ID, &run.Source, &run.Mode, &startedRaw, &finishedRaw,
			&run.Succeeded, &run.Skipped, &run.Failed, &canceled); err != nil {
			return nil, err
		}
		run.StartedAt, _ = parseTime(startedRaw)
		if finishedRaw.Valid {
			if finished, err := parseTime(finishedRaw.String); err == nil {
				run.FinishedAt = &finished
			}
		}
		run.Canceled = canceled != 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Items returns the item records of one run in insertion order.
func (s *Store) Items(ctx context.Context, runID string) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, title, episode_title, source_path, final_path, status,
                failed_stage, error_kind, error_message, warnings_json, stages_json,
                started_at, finished_at
         FROM items WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// StatusCounts returns how many items ever ended in each status.
func (s *Store) StatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Prune deletes runs that started before cutoff along with their items.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return affected, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (ItemRecord, error) {
	var (
		item         ItemRecord
		title        sql.NullString
		episodeTitle sql.NullString
		sourcePath   sql.NullString
		finalPath    sql.NullString
		failedStage  sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		warnings     sql.NullString
		stages       sql.NullString
		startedRaw   string
		finishedRaw  string
	)
	if err := scanner.Scan(
		&item.ID, &item.RunID, &title, &episodeTitle, &sourcePath, &finalPath, &item.Status,
		&failedStage, &errorKind, &errorMessage, &warnings, &stages, &startedRaw, &finishedRaw,
	); err != nil {
		return ItemRecord{}, err
	}
	item.Title = title.String
	item.EpisodeTitle = episodeTitle.String
	item.SourcePath = sourcePath.String
	item.FinalPath = finalPath.String
	item.FailedStage = failedStage.String
	item.ErrorKind = errorKind.String
	item.ErrorMessage = errorMessage.String
	if warnings.Valid {
		if err := json.Unmarshal([]byte(warnings.String), &item.Warnings); err != nil {
			return ItemRecord{}, fmt.Errorf("decode warnings: %w", err)
		}
	}
	if stages.Valid {
		if err := json.Unmarshal([]byte(stages.String), &item.Stages); err != nil {
			return ItemRecord{}, fmt.Errorf("decode stages: %w", err)
		}
	}
	item.StartedAt, _ = parseTime(startedRaw)
	item.FinishedAt, _ = parseTime(finishedRaw)
	return item, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
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

func marshalOptional[T any](values []T) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
