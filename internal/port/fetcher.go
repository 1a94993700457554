package port

import (
	"context"

	"github.com/vertextoedge/firefox-downloader/internal/domain"
)

// Fetcher retrieves a URL into a destination file.
// On failure it returns a *domain.FetchError and leaves no file at dest.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (*domain.DownloadResult, error)
}
