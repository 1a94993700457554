// Package mozilla fetches build artifacts from the Mozilla download server.
package mozilla

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/vertextoedge/firefox-downloader/internal/domain"
	"github.com/vertextoedge/firefox-downloader/internal/port"
	"github.com/vertextoedge/firefox-downloader/internal/progress"
	"go.uber.org/zap"
)

// DefaultChunkSize is the read size of the transfer loop
const DefaultChunkSize = 32 * 1024

// ClientConfig contains optional client configuration
type ClientConfig struct {
	// ChunkSize is the number of bytes read per iteration (default: 32KiB)
	ChunkSize int

	// ResponseHeaderTimeout bounds the wait for response headers (0: none).
	// Body reads have no deadline unless InactivityTimeout is set.
	ResponseHeaderTimeout time.Duration

	// InactivityTimeout aborts a transfer receiving no data for this long (0: disabled)
	InactivityTimeout time.Duration

	UserAgent string

	// Progress receives transfer updates (default: progress.Nop)
	Progress progress.Sink

	// HTTPClient overrides the default download client
	HTTPClient *http.Client
}

// Client downloads URLs into local files
type Client struct {
	httpClient        *http.Client
	chunkSize         int
	inactivityTimeout time.Duration
	userAgent         string
	progress          progress.Sink
	logger            *zap.Logger
}

// Ensure Client implements port.Fetcher
var _ port.Fetcher = (*Client)(nil)

// NewClient creates a new download client
func NewClient(cfg *ClientConfig, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	sink := cfg.Progress
	if sink == nil {
		sink = progress.Nop{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,

			// Disable compression for binary files so Content-Length matches bytes on disk
			DisableCompression: true,

			// Response header timeout (not total download timeout)
			ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		}
		httpClient = &http.Client{
			Transport: transport,
			Timeout:   0, // No timeout for downloads
		}
	}

	return &Client{
		httpClient:        httpClient,
		chunkSize:         chunkSize,
		inactivityTimeout: cfg.InactivityTimeout,
		userAgent:         cfg.UserAgent,
		progress:          sink,
		logger:            logger,
	}
}

// Fetch downloads url into dest.
// An existing dest with the declared Content-Length is reused without reading the body;
// any other existing dest is replaced. No file is left at dest when an error is returned
// after the transfer started.
func (c *Client) Fetch(ctx context.Context, url, dest string) (*domain.DownloadResult, error) {
	ctx, wd := newWatchdog(ctx, c.inactivityTimeout)
	defer wd.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, c.fail(domain.NewNetworkError(url, 0, fmt.Errorf("create request: %w", err)))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(c.classify(ctx, url, err))
	}
	// Closing unread releases the connection on a cache hit
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(domain.NewNetworkError(url, resp.StatusCode, errors.New(resp.Status)))
	}

	fileSize := resp.ContentLength // -1 if the server doesn't send Content-Length

	if info, err := os.Stat(dest); err == nil {
		if info.Mode().IsRegular() && fileSize >= 0 && info.Size() == fileSize {
			c.logger.Info("skipping download using cached file", zap.String("path", dest))
			return &domain.DownloadResult{Path: dest, Size: fileSize, CacheHit: true}, nil
		}

		c.logger.Warn("purging incomplete or obsolete cache file",
			zap.String("path", dest),
			zap.Int64("size", info.Size()),
			zap.Int64("expected_size", fileSize))
		if err := os.Remove(dest); err != nil {
			return nil, c.fail(domain.NewIOError(url, fmt.Errorf("remove stale file: %w", err)))
		}
	}

	c.logger.Info("downloading",
		zap.String("url", url),
		zap.String("path", dest),
		zap.Int64("size", fileSize))

	written, err := c.stream(ctx, wd, url, dest, resp.Body, fileSize)
	if err != nil {
		return nil, c.fail(err)
	}

	c.logger.Info("download complete",
		zap.String("path", dest),
		zap.Int64("size", written))

	return &domain.DownloadResult{Path: dest, Size: written}, nil
}

// stream copies body into a new dest file. Every exit path except success removes dest.
func (c *Client) stream(ctx context.Context, wd *watchdog, url, dest string, body io.Reader, fileSize int64) (int64, error) {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, domain.NewIOError(url, fmt.Errorf("create file: %w", err))
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		f.Close()
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			c.logger.Error("failed to remove partial file", zap.String("path", dest), zap.Error(rmErr))
		}
		c.progress.Abort()
	}()

	c.progress.Start(fileSize)

	var written int64
	buf := make([]byte, c.chunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			wd.Kick()
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return written, domain.NewIOError(url, fmt.Errorf("write: %w", writeErr))
			}
			written += int64(n)
			c.progress.Update(written)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, c.classify(ctx, url, readErr)
		}
	}

	if fileSize >= 0 && written != fileSize {
		return written, domain.NewNetworkError(url, 0,
			fmt.Errorf("size mismatch: expected %d, got %d", fileSize, written))
	}

	if err := f.Close(); err != nil {
		return written, domain.NewIOError(url, fmt.Errorf("close file: %w", err))
	}

	completed = true
	c.progress.Finish()
	return written, nil
}

// classify maps a transport error to a FetchError using the context's cancellation cause
func (c *Client) classify(ctx context.Context, url string, err error) error {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return domain.NewNetworkError(url, 0, err)
	case errors.Is(cause, os.ErrDeadlineExceeded):
		return domain.NewNetworkError(url, 0,
			fmt.Errorf("no data received for %s: %w", c.inactivityTimeout, cause))
	default:
		return domain.NewInterruptedError(url, cause)
	}
}

// fail logs a FetchError with a severity matching its kind
func (c *Client) fail(err error) error {
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		c.logger.Error("download failed", zap.Error(err))
		return err
	}

	switch fe.Kind {
	case domain.KindInterrupted:
		c.logger.Error("download interrupted by user",
			zap.String("severity", "critical"),
			zap.String("url", fe.URL))
	case domain.KindNetwork:
		c.logger.Error("network error",
			zap.String("url", fe.URL),
			zap.Int("status", fe.StatusCode),
			zap.Error(fe.Err))
	default:
		c.logger.Error("filesystem error",
			zap.String("url", fe.URL),
			zap.Error(fe.Err))
	}
	return err
}
