package port

import (
	"time"

	"github.com/vertextoedge/firefox-downloader/internal/domain"
)

// CacheStore defines the operations on the download cache directory
type CacheStore interface {
	// RootDir returns the cache root directory
	RootDir() string

	// CacheFileName returns the file name for a release/platform pair
	CacheFileName(release, platformToken, extension string) string

	// CachePath returns the full path of a cache file name
	CachePath(fileName string) string

	// PurgeStale removes every file older than maxAge.
	// Failures on individual files are logged and skipped.
	// Returns the number of files removed
	PurgeStale(maxAge time.Duration) (int, error)

	// IsComplete reports whether path exists with exactly expectedSize bytes
	IsComplete(path string, expectedSize int64) bool

	// RemoveFile removes a cache file; a missing file is not an error
	RemoveFile(path string) error

	// Entries lists the files currently in the cache
	Entries() ([]domain.CacheEntry, error)
}
