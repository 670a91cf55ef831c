package journal

import (
	"context"
	"fmt"
	"time"
)

// Summary aggregates chapter counts per lifecycle state.
type Summary struct {
	Total      int
	Pending    int
	Glossaried int
	Translated int
	Proofed    int
	Failed     int
}

// Stats returns a count of chapters grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM chapters GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates journal state for the status table.
func (s *Store) Health(ctx context.Context) (Summary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{}
	for status, count := range stats {
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending += count
		case StatusGlossaried:
			summary.Glossaried += count
		case StatusTranslated:
			summary.Translated += count
		case StatusProofed:
			summary.Proofed += count
		case StatusFailed:
			summary.Failed += count
		}
	}
	return summary, nil
}

// Untranslated lists the chapters that never produced a translation:
// still pending, stopped after the glossary phase, or failed outright.
func (s *Store) Untranslated(ctx context.Context) ([]*Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters
         WHERE status IN (?, ?, ?)
         ORDER BY ordinal IS NULL, ordinal, name`,
		StatusPending, StatusGlossaried, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("list untranslated: %w", err)
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

// ResetFailed returns failed chapters to pending so the next run retries
// them. Reports how many rows changed.
func (s *Store) ResetFailed(ctx context.Context) (int, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE chapters SET status = ?, last_error = NULL, updated_at = ? WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("reset failed chapters: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}
