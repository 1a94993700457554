package port

import (
	"context"
	"time"

	"github.com/vertextoedge/firefox-downloader/internal/domain"
)

// HistoryRepository persists download attempts
type HistoryRepository interface {
	// Record stores a download attempt, assigning an ID if empty
	Record(ctx context.Context, rec *domain.DownloadRecord) error

	// Recent returns the latest records, newest first
	Recent(ctx context.Context, limit int) ([]*domain.DownloadRecord, error)

	// LastSuccess returns the latest fetched or cache_hit record for a pair, or nil
	LastSuccess(ctx context.Context, release, platform string) (*domain.DownloadRecord, error)

	// DeleteOlderThan removes records that finished before now-age
	DeleteOlderThan(ctx context.Context, age time.Duration) (int, error)
}
