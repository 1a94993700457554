package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vertextoedge/firefox-downloader/internal/port"
	"go.uber.org/zap"
)

// Purger removes stale files from the download cache
type Purger interface {
	Purge() (int, error)
}

// Config contains maintenance service configuration
type Config struct {
	// PurgeInterval is how often to purge stale cache files
	PurgeInterval time.Duration

	// HistoryMaxAge is the maximum age of history records before cleanup
	HistoryMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		PurgeInterval: 10 * time.Minute,
		HistoryMaxAge: 30 * 24 * time.Hour,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config  *Config
	cache   Purger
	history port.HistoryRepository
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. history may be nil.
func New(cfg *Config, cache Purger, history port.HistoryRepository, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PurgeInterval == 0 {
		cfg.PurgeInterval = 10 * time.Minute
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  cfg,
		cache:   cache,
		history: history,
		logger:  logger,
	}
}

// Start runs maintenance immediately and then on every interval until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("purge_interval", s.config.PurgeInterval),
		zap.Duration("history_max_age", s.config.HistoryMaxAge))

	s.RunOnce(ctx)

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// RunOnce purges stale cache files and prunes old history records.
// Returns the number of cache files removed.
func (s *Service) RunOnce(ctx context.Context) int {
	removed := s.purgeStaleFiles()
	s.cleanupHistory(ctx)
	return removed
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// purgeStaleFiles removes cache files older than the cache timeout
func (s *Service) purgeStaleFiles() int {
	removed, err := s.cache.Purge()
	if err != nil {
		s.logger.Error("failed to purge stale cache files", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("purged stale cache files", zap.Int("count", removed))
	}
	return removed
}

// cleanupHistory removes old history records
func (s *Service) cleanupHistory(ctx context.Context) {
	if s.history == nil {
		return
	}
	cleared, err := s.history.DeleteOlderThan(ctx, s.config.HistoryMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup download history", zap.Error(err))
	} else if cleared > 0 {
		s.logger.Info("cleaned up old download history", zap.Int("count", cleared))
	}
}
