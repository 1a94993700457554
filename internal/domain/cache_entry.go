package domain

import "time"

// CacheEntry is a file found in the download cache
type CacheEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// IsStale reports whether the entry is older than maxAge at the given time
func (e CacheEntry) IsStale(now time.Time, maxAge time.Duration) bool {
	return e.ModTime.Before(now.Add(-maxAge))
}
