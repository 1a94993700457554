package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vertextoedge/firefox-downloader/internal/domain"
)

const recordColumns = `id, channel, platform, url, path, bytes, outcome, error, started_at, finished_at`

// Record stores a download attempt
func (s *Store) Record(ctx context.Context, rec *domain.DownloadRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}

	query := `INSERT INTO downloads (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Release, rec.Platform, rec.URL, rec.Path, rec.Bytes,
		string(rec.Outcome), rec.Error, rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert download record: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]*domain.DownloadRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + recordColumns + ` FROM downloads ORDER BY finished_at DESC, rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query download records: %w", err)
	}
	defer rows.Close()

	var records []*domain.DownloadRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LastSuccess returns the latest fetched or cache_hit record for a pair
func (s *Store) LastSuccess(ctx context.Context, release, platform string) (*domain.DownloadRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM downloads
		WHERE channel = ? AND platform = ? AND outcome IN (?, ?)
		ORDER BY finished_at DESC, rowid DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, release, platform,
		string(domain.OutcomeFetched), string(domain.OutcomeCacheHit))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteOlderThan removes records that finished before now-age
func (s *Store) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).UnixNano()
	result, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old download records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.DownloadRecord, error) {
	rec := &domain.DownloadRecord{}
	var outcome string
	var startedAt, finishedAt int64

	err := row.Scan(
		&rec.ID, &rec.Release, &rec.Platform, &rec.URL, &rec.Path, &rec.Bytes,
		&outcome, &rec.Error, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Outcome = domain.DownloadOutcome(outcome)
	rec.StartedAt = time.Unix(0, startedAt)
	rec.FinishedAt = time.Unix(0, finishedAt)
	return rec, nil
}
