package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"loom/internal/chapter"
)

// Status is the last phase a chapter completed, or failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGlossaried Status = "glossaried"
	StatusTranslated Status = "translated"
	StatusProofed    Status = "proofed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusGlossaried,
	StatusTranslated,
	StatusProofed,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Valid reports whether the status belongs to the lifecycle enum.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Chapter is one journal row tying a chapter file to its pipeline outcome.
type Chapter struct {
	ID         int64
	Name       string
	Ordinal    int64
	HasOrdinal bool
	Status     Status
	Attempts   int
	LastError  string
	RunID      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const chapterColumns = "id, name, ordinal, status, attempts, last_error, run_id, created_at, updated_at"

func scanChapter(scanner interface{ Scan(dest ...any) error }) (*Chapter, error) {
	var (
		id         int64
		name       string
		ordinal    sql.NullInt64
		statusStr  string
		attempts   int
		lastError  sql.NullString
		runID      sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&name,
		&ordinal,
		&statusStr,
		&attempts,
		&lastError,
		&runID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	row := &Chapter{
		ID:        id,
		Name:      name,
		Status:    Status(statusStr),
		Attempts:  attempts,
		LastError: lastError.String,
		RunID:     runID.String,
	}
	if ordinal.Valid {
		row.Ordinal = ordinal.Int64
		row.HasOrdinal = true
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		row.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		row.UpdatedAt = updated
	}
	return row, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// EnsureChapters upserts one pending row per scanned unit. Rows that
// already exist keep their status and attempt count so a re-run resumes
// instead of restarting; only the ordinal and owning run are refreshed.
func (s *Store) EnsureChapters(ctx context.Context, units []*chapter.Unit, runID string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	for _, unit := range units {
		var ordinal any
		if unit.HasOrdinal {
			ordinal = int64(unit.Ordinal)
		}
		_, err := s.execWithRetry(
			ctx,
			`INSERT INTO chapters (name, ordinal, status, attempts, run_id, created_at, updated_at)
             VALUES (?, ?, ?, 0, ?, ?, ?)
             ON CONFLICT(name) DO UPDATE SET
                 ordinal = excluded.ordinal,
                 run_id = excluded.run_id,
                 updated_at = excluded.updated_at`,
			unit.Name,
			ordinal,
			StatusPending,
			nullableString(runID),
			timestamp,
			timestamp,
		)
		if err != nil {
			return fmt.Errorf("ensure chapter %s: %w", unit.Name, err)
		}
	}
	return nil
}

// Get fetches one chapter row by file name. A missing row returns nil.
func (s *Store) Get(ctx context.Context, name string) (*Chapter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE name = ?`, name)
	ch, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	return ch, nil
}

// List returns all chapter rows in natural order, ordinal-less names last.
func (s *Store) List(ctx context.Context) ([]*Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters
         ORDER BY ordinal IS NULL, ordinal, name`)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// MarkPhase records that a chapter completed the phase behind status and
// clears any stale failure hint.
func (s *Store) MarkPhase(ctx context.Context, name string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid chapter status %q", status)
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE chapters SET status = ?, last_error = NULL, updated_at = ? WHERE name = ?`,
		status,
		time.Now().UTC().Format(time.RFC3339Nano),
		name,
	)
	if err != nil {
		return fmt.Errorf("mark chapter %s %s: %w", name, status, err)
	}
	return nil
}

// MarkFailed records a failure hint and bumps the attempt counter.
func (s *Store) MarkFailed(ctx context.Context, name, hint string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE chapters
         SET status = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
         WHERE name = ?`,
		StatusFailed,
		nullableString(hint),
		time.Now().UTC().Format(time.RFC3339Nano),
		name,
	)
	if err != nil {
		return fmt.Errorf("mark chapter %s failed: %w", name, err)
	}
	return nil
}
