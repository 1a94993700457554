// Package downloader resolves Firefox builds to cache files and fetches them.
package downloader

import (
	"context"
	"fmt"
	"time"

	"github.com/vertextoedge/firefox-downloader/internal/catalog"
	"github.com/vertextoedge/firefox-downloader/internal/domain"
	"github.com/vertextoedge/firefox-downloader/internal/metrics"
	"github.com/vertextoedge/firefox-downloader/internal/port"
	"go.uber.org/zap"
)

// DefaultCacheTimeout is the age after which a cached build is purged
const DefaultCacheTimeout = 4 * time.Hour

// Config contains downloader configuration
type Config struct {
	// CacheTimeout is the maximum age of a cache file
	CacheTimeout time.Duration
}

// DefaultConfig returns default downloader configuration
func DefaultConfig() *Config {
	return &Config{CacheTimeout: DefaultCacheTimeout}
}

// Defaults names the default channels of a test run
type Defaults struct {
	Test string
	Base string
}

// Service downloads builds into the cache
type Service struct {
	config  *Config
	cache   port.CacheStore
	fetcher port.Fetcher
	history port.HistoryRepository
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a new downloader Service. history may be nil.
func New(cfg *Config, cache port.CacheStore, fetcher port.Fetcher, history port.HistoryRepository, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = DefaultCacheTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  cfg,
		cache:   cache,
		fetcher: fetcher,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Download makes sure the build for release and platform is in the cache and
// returns its absolute path. With useCache false any cached copy is discarded first.
func (s *Service) Download(ctx context.Context, release, platform string, useCache bool) (string, error) {
	rec := &domain.DownloadRecord{
		Release:   release,
		Platform:  platform,
		StartedAt: s.now(),
	}

	url, p, err := catalog.Resolve(release, platform)
	if err != nil {
		s.logger.Error("invalid download request",
			zap.String("release", release),
			zap.String("platform", platform),
			zap.Error(err))
		s.finish(ctx, rec, nil, err)
		return "", err
	}
	rec.URL = url

	dest := s.cache.CachePath(s.cache.CacheFileName(release, p.Token, p.Extension))
	rec.Path = dest

	s.purge()

	if !useCache {
		s.logger.Info("cache bypass requested, removing cached file", zap.String("path", dest))
		if err := s.cache.RemoveFile(dest); err != nil {
			s.logger.Warn("failed to remove cached file", zap.String("path", dest), zap.Error(err))
		}
	}

	result, err := s.fetcher.Fetch(ctx, url, dest)
	if err != nil {
		s.logger.Error("failed to download build",
			zap.String("release", release),
			zap.String("platform", platform),
			zap.String("url", url),
			zap.Error(err))
		s.finish(ctx, rec, nil, err)
		return "", fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}

	if !s.cache.IsComplete(result.Path, result.Size) {
		err := domain.NewIOError(url, fmt.Errorf("%s is not a complete %d byte file", result.Path, result.Size))
		s.logger.Error("cache file failed size check", zap.String("path", result.Path), zap.Error(err))
		if rmErr := s.cache.RemoveFile(result.Path); rmErr != nil {
			s.logger.Warn("failed to remove cached file", zap.String("path", result.Path), zap.Error(rmErr))
		}
		s.finish(ctx, rec, nil, err)
		return "", fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}

	s.finish(ctx, rec, result, nil)
	return result.Path, nil
}

// Purge removes stale cache files and returns how many were removed
func (s *Service) Purge() (int, error) {
	removed, err := s.cache.PurgeStale(s.config.CacheTimeout)
	if removed > 0 {
		metrics.StaleFilesPurged.Add(float64(removed))
	}
	return removed, err
}

func (s *Service) purge() {
	removed, err := s.Purge()
	if err != nil {
		s.logger.Error("failed to purge stale cache files", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("purged stale cache files",
			zap.Int("count", removed),
			zap.Duration("max_age", s.config.CacheTimeout))
	}
}

// finish records the attempt in history and metrics
func (s *Service) finish(ctx context.Context, rec *domain.DownloadRecord, result *domain.DownloadResult, err error) {
	rec.FinishedAt = s.now()
	rec.Outcome = domain.OutcomeFor(result, err)
	if err != nil {
		rec.Error = err.Error()
	}
	if result != nil {
		rec.Path = result.Path
		rec.Bytes = result.Size
	}

	metrics.Downloads.WithLabelValues(rec.Release, rec.Platform, string(rec.Outcome)).Inc()
	if rec.Outcome != domain.OutcomeInvalid {
		metrics.FetchDuration.WithLabelValues(string(rec.Outcome)).Observe(rec.Duration().Seconds())
	}
	if rec.Outcome == domain.OutcomeFetched {
		metrics.BytesFetched.Add(float64(rec.Bytes))
	}

	if s.history == nil {
		return
	}
	// A cancelled ctx must not prevent recording the interrupt itself
	if err := s.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record download history", zap.Error(err))
	}
}

// ListChannels returns the known release channels
func (s *Service) ListChannels() []string {
	return catalog.ListChannels()
}

// ListPlatforms returns the known platforms
func (s *Service) ListPlatforms() []string {
	return catalog.ListPlatforms()
}

// Defaults returns the default test and base channels
func (s *Service) Defaults() Defaults {
	return Defaults{Test: catalog.DefaultTestChannel, Base: catalog.DefaultBaseChannel}
}

// Entries lists the current cache contents
func (s *Service) Entries() ([]domain.CacheEntry, error) {
	return s.cache.Entries()
}
