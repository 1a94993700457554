package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vertextoedge/firefox-downloader/internal/domain"
	"github.com/vertextoedge/firefox-downloader/internal/port"
	"go.uber.org/zap"
)

// Manager handles the download cache directory
type Manager struct {
	rootDir string
	logger  *zap.Logger
	now     func() time.Time
}

// Ensure Manager implements port.CacheStore
var _ port.CacheStore = (*Manager)(nil)

// NewManager creates a new cache manager, creating rootDir and its parents if needed
func NewManager(rootDir string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache root dir: %w", err)
	}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		logger.Debug("creating cache directory", zap.String("path", abs))
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	return &Manager{
		rootDir: abs,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// RootDir returns the cache root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// CacheFileName returns the cache file name for a release/platform pair.
// Release names and platform tokens never contain '_', so names do not collide.
func (m *Manager) CacheFileName(release, platformToken, extension string) string {
	return fmt.Sprintf("firefox-%s_%s.%s", release, platformToken, extension)
}

// CachePath returns the full path for a cache file name
func (m *Manager) CachePath(fileName string) string {
	return filepath.Join(m.rootDir, fileName)
}

// PurgeStale removes files whose modification time is older than now-maxAge
func (m *Manager) PurgeStale(maxAge time.Duration) (int, error) {
	count := 0
	staleLimit := m.now().Add(-maxAge)

	err := filepath.WalkDir(m.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == m.rootDir {
				return err
			}
			m.logger.Warn("skipping unreadable cache path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			m.logger.Warn("failed to stat cache file", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.ModTime().Before(staleLimit) {
			return nil
		}

		m.logger.Debug("purging stale cache file",
			zap.String("path", path),
			zap.Time("modified_at", info.ModTime()))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("failed to purge stale cache file", zap.String("path", path), zap.Error(err))
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to walk cache dir: %w", err)
	}
	return count, nil
}

// IsComplete reports whether path is a regular file of exactly expectedSize bytes
func (m *Manager) IsComplete(path string, expectedSize int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() == expectedSize
}

// RemoveFile removes a cached file
func (m *Manager) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Entries lists cached files sorted by path
func (m *Manager) Entries() ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	err := filepath.WalkDir(m.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, domain.CacheEntry{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
