package downloader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vertextoedge/firefox-downloader/internal/adapter/filesystem"
	"github.com/vertextoedge/firefox-downloader/internal/adapter/mozilla"
	"github.com/vertextoedge/firefox-downloader/internal/domain"
	"github.com/vertextoedge/firefox-downloader/internal/metrics"
	"go.uber.org/zap"
)

// mockCacheStore implements port.CacheStore for testing
type mockCacheStore struct {
	mu          sync.Mutex
	calls       []string
	purgeCount  int
	purgeErr    error
	purgeMaxAge time.Duration
	removed     []string
	incomplete  bool
}

func (m *mockCacheStore) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockCacheStore) RootDir() string { return "/cache" }
func (m *mockCacheStore) CacheFileName(release, token, ext string) string {
	return "firefox-" + release + "_" + token + "." + ext
}
func (m *mockCacheStore) CachePath(fileName string) string { return "/cache/" + fileName }
func (m *mockCacheStore) PurgeStale(maxAge time.Duration) (int, error) {
	m.record("purge")
	m.purgeMaxAge = maxAge
	return m.purgeCount, m.purgeErr
}
func (m *mockCacheStore) IsComplete(path string, size int64) bool { return !m.incomplete }
func (m *mockCacheStore) RemoveFile(path string) error {
	m.record("remove")
	m.removed = append(m.removed, path)
	return nil
}
func (m *mockCacheStore) Entries() ([]domain.CacheEntry, error) { return nil, nil }

// mockFetcher implements port.Fetcher for testing
type mockFetcher struct {
	cache  *mockCacheStore
	urls   []string
	dests  []string
	result *domain.DownloadResult
	err    error
}

func (m *mockFetcher) Fetch(ctx context.Context, url, dest string) (*domain.DownloadResult, error) {
	if m.cache != nil {
		m.cache.record("fetch")
	}
	m.urls = append(m.urls, url)
	m.dests = append(m.dests, dest)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.DownloadResult{Path: dest, Size: 1}, nil
}

// mockHistory implements port.HistoryRepository for testing
type mockHistory struct {
	records []*domain.DownloadRecord
	err     error
}

func (m *mockHistory) Record(ctx context.Context, rec *domain.DownloadRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.records = append(m.records, rec)
	return m.err
}
func (m *mockHistory) Recent(ctx context.Context, limit int) ([]*domain.DownloadRecord, error) {
	return m.records, nil
}
func (m *mockHistory) LastSuccess(ctx context.Context, release, platform string) (*domain.DownloadRecord, error) {
	return nil, nil
}
func (m *mockHistory) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	return 0, nil
}

func TestNew_Defaults(t *testing.T) {
	s := New(nil, &mockCacheStore{}, &mockFetcher{}, nil, nil)
	if s.config.CacheTimeout != 4*time.Hour {
		t.Errorf("CacheTimeout = %v, want 4h", s.config.CacheTimeout)
	}

	s = New(&Config{CacheTimeout: -time.Second}, &mockCacheStore{}, &mockFetcher{}, nil, nil)
	if s.config.CacheTimeout != DefaultCacheTimeout {
		t.Errorf("CacheTimeout = %v, want default for non-positive value", s.config.CacheTimeout)
	}
}

func TestService_Download_Order(t *testing.T) {
	tests := []struct {
		name      string
		useCache  bool
		wantCalls []string
	}{
		{"use cache", true, []string{"purge", "fetch"}},
		{"bypass cache", false, []string{"purge", "remove", "fetch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &mockCacheStore{}
			fetcher := &mockFetcher{cache: cache}
			s := New(&Config{CacheTimeout: 2 * time.Hour}, cache, fetcher, nil, zap.NewNop())

			path, err := s.Download(context.Background(), "nightly", "linux", tt.useCache)
			if err != nil {
				t.Fatalf("Download() error = %v", err)
			}
			if path != "/cache/firefox-nightly_linux64.tar.bz2" {
				t.Errorf("Download() = %q", path)
			}

			if len(cache.calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", cache.calls, tt.wantCalls)
			}
			for i := range tt.wantCalls {
				if cache.calls[i] != tt.wantCalls[i] {
					t.Errorf("calls = %v, want %v", cache.calls, tt.wantCalls)
					break
				}
			}
			if cache.purgeMaxAge != 2*time.Hour {
				t.Errorf("purge max age = %v, want 2h", cache.purgeMaxAge)
			}
			if !tt.useCache && cache.removed[0] != path {
				t.Errorf("removed %q, want the cache path %q", cache.removed[0], path)
			}

			wantURL := "https://download.mozilla.org/?product=firefox-nightly-latest&os=linux64&lang=en-US"
			if fetcher.urls[0] != wantURL {
				t.Errorf("fetched %q, want %q", fetcher.urls[0], wantURL)
			}
		})
	}
}

func TestService_Download_UnknownIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		release  string
		platform string
		wantName string
	}{
		{"unknown release", "bogus", "linux", "bogus"},
		{"unknown platform", "release", "amiga", "amiga"},
		{"both unknown reports release", "bogus", "amiga", "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &mockCacheStore{}
			fetcher := &mockFetcher{cache: cache}
			history := &mockHistory{}
			s := New(nil, cache, fetcher, history, zap.NewNop())

			path, err := s.Download(context.Background(), tt.release, tt.platform, true)
			if path != "" {
				t.Errorf("Download() path = %q, want empty", path)
			}
			if !domain.IsUnknownIdentifier(err) {
				t.Fatalf("Download() error = %v, want unknown identifier", err)
			}
			if !bytes.Contains([]byte(err.Error()), []byte(tt.wantName)) {
				t.Errorf("error %q does not name %q", err, tt.wantName)
			}
			if len(cache.calls) != 0 {
				t.Errorf("cache calls = %v, want none", cache.calls)
			}
			if len(history.records) != 1 || history.records[0].Outcome != domain.OutcomeInvalid {
				t.Errorf("history = %+v, want one invalid record", history.records)
			}
		})
	}
}

func TestService_Download_FetchFailure(t *testing.T) {
	fetchErr := domain.NewNetworkError("u", http.StatusServiceUnavailable, nil)
	cache := &mockCacheStore{}
	history := &mockHistory{}
	s := New(nil, cache, &mockFetcher{err: fetchErr}, history, zap.NewNop())

	before := testutil.ToFloat64(metrics.Downloads.WithLabelValues("beta", "win", "failed"))

	path, err := s.Download(context.Background(), "beta", "win", true)
	if path != "" {
		t.Errorf("Download() path = %q, want empty", path)
	}
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Errorf("Download() error = %v, want ErrDownloadFailed", err)
	}
	if !errors.Is(err, fetchErr) {
		t.Error("Download() error should wrap the fetch error")
	}

	if got := testutil.ToFloat64(metrics.Downloads.WithLabelValues("beta", "win", "failed")); got != before+1 {
		t.Errorf("failed downloads = %v, want %v", got, before+1)
	}
	if len(history.records) != 1 {
		t.Fatalf("history records = %d, want 1", len(history.records))
	}
	rec := history.records[0]
	if rec.Outcome != domain.OutcomeFailed || rec.Error == "" || rec.URL == "" {
		t.Errorf("record = %+v", rec)
	}
}

func TestService_Download_SizeCheckFailure(t *testing.T) {
	cache := &mockCacheStore{incomplete: true}
	history := &mockHistory{}
	s := New(nil, cache, &mockFetcher{}, history, zap.NewNop())

	path, err := s.Download(context.Background(), "release", "linux", true)
	if path != "" || !errors.Is(err, domain.ErrDownloadFailed) {
		t.Fatalf("Download() = %q, %v, want ErrDownloadFailed", path, err)
	}
	if kind, ok := domain.FetchErrorKindOf(err); !ok || kind != domain.KindIO {
		t.Errorf("error kind = %v, want io", kind)
	}
	if history.records[0].Outcome != domain.OutcomeFailed {
		t.Errorf("outcome = %s, want failed", history.records[0].Outcome)
	}
}

func TestService_Download_InterruptRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	history := &mockHistory{}
	fetcher := &mockFetcher{err: domain.NewInterruptedError("u", context.Canceled)}
	s := New(nil, &mockCacheStore{}, fetcher, history, zap.NewNop())

	_, err := s.Download(ctx, "esr", "osx", true)
	if !domain.IsInterrupted(err) {
		t.Fatalf("Download() error = %v, want interrupted", err)
	}
	if len(history.records) != 1 || history.records[0].Outcome != domain.OutcomeInterrupted {
		t.Errorf("history = %+v, want one interrupted record", history.records)
	}
}

func TestService_Download_PurgeFailureNotFatal(t *testing.T) {
	cache := &mockCacheStore{purgeErr: errors.New("walk failed")}
	s := New(nil, cache, &mockFetcher{cache: cache}, nil, zap.NewNop())

	if _, err := s.Download(context.Background(), "release", "win32", true); err != nil {
		t.Errorf("Download() error = %v, want purge failure ignored", err)
	}
}

func TestService_Download_HistoryFailureNotFatal(t *testing.T) {
	history := &mockHistory{err: errors.New("db locked")}
	s := New(nil, &mockCacheStore{}, &mockFetcher{}, history, zap.NewNop())

	if _, err := s.Download(context.Background(), "aurora", "linux32", true); err != nil {
		t.Errorf("Download() error = %v, want history failure ignored", err)
	}
}

func TestService_Download_RecordsCacheHit(t *testing.T) {
	history := &mockHistory{}
	fetcher := &mockFetcher{result: &domain.DownloadResult{Path: "/cache/x", Size: 42, CacheHit: true}}
	s := New(nil, &mockCacheStore{}, fetcher, history, zap.NewNop())

	if _, err := s.Download(context.Background(), "release", "osx", true); err != nil {
		t.Fatal(err)
	}
	rec := history.records[0]
	if rec.Outcome != domain.OutcomeCacheHit || rec.Bytes != 42 {
		t.Errorf("record = %+v, want cache hit of 42 bytes", rec)
	}
}

func TestService_Catalog(t *testing.T) {
	s := New(nil, &mockCacheStore{}, &mockFetcher{}, nil, nil)

	if got := s.ListChannels(); len(got) != 5 || got[0] != "aurora" {
		t.Errorf("ListChannels() = %v", got)
	}
	if got := s.ListPlatforms(); len(got) != 5 || got[0] != "linux" {
		t.Errorf("ListPlatforms() = %v", got)
	}
	if d := s.Defaults(); d.Test != "nightly" || d.Base != "release" {
		t.Errorf("Defaults() = %+v", d)
	}
}

// The following tests run the real cache manager and client against a local server.

// localFetcher sends every request to a test server instead of the catalog URL
type localFetcher struct {
	client *mozilla.Client
	base   string
}

func (f *localFetcher) Fetch(ctx context.Context, url, dest string) (*domain.DownloadResult, error) {
	return f.client.Fetch(ctx, f.base, dest)
}

type buildServer struct {
	*httptest.Server
	hits atomic.Int32
	body []byte
}

func newBuildServer(t *testing.T, size int) *buildServer {
	t.Helper()
	bs := &buildServer{body: bytes.Repeat([]byte{0xfe}, size)}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs.hits.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(bs.body)))
		w.Write(bs.body)
	}))
	t.Cleanup(bs.Close)
	return bs
}

func newLocalService(t *testing.T, bs *buildServer) (*Service, *filesystem.Manager) {
	t.Helper()
	cache, err := filesystem.NewManager(filepath.Join(t.TempDir(), "download_cache"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	fetcher := &localFetcher{client: mozilla.NewClient(nil, zap.NewNop()), base: bs.URL}
	return New(nil, cache, fetcher, nil, zap.NewNop()), cache
}

func TestService_Download_NightlyLinux(t *testing.T) {
	bs := newBuildServer(t, 1<<20)
	s, cache := newLocalService(t, bs)

	path, err := s.Download(context.Background(), "nightly", "linux", true)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	want := filepath.Join(cache.RootDir(), "firefox-nightly_linux64.tar.bz2")
	if path != want {
		t.Errorf("Download() = %q, want %q", path, want)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("Download() = %q, want absolute path", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 1<<20 {
		t.Errorf("size = %d, want 1MiB", info.Size())
	}
}

func TestService_Download_Idempotent(t *testing.T) {
	bs := newBuildServer(t, 64*1024)
	s, _ := newLocalService(t, bs)
	ctx := context.Background()

	first, err := s.Download(ctx, "release", "win", true)
	if err != nil {
		t.Fatal(err)
	}
	before, _ := os.Stat(first)

	second, err := s.Download(ctx, "release", "win", true)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("paths differ: %q and %q", first, second)
	}

	after, _ := os.Stat(second)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("cached file was rewritten on the second call")
	}
	if bs.hits.Load() != 2 {
		t.Errorf("server requests = %d, want 2 (one transfer plus one header check)", bs.hits.Load())
	}
}

func TestService_Download_Bypass(t *testing.T) {
	bs := newBuildServer(t, 2048)
	s, cache := newLocalService(t, bs)

	path := cache.CachePath("firefox-beta_osx.dmg")
	marker := bytes.Repeat([]byte("m"), 2048)
	if err := os.WriteFile(path, marker, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Download(context.Background(), "beta", "osx", false)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	content, _ := os.ReadFile(got)
	if !bytes.Equal(content, bs.body) {
		t.Error("bypass should fetch a fresh copy even when the cached size matches")
	}
}

func TestService_Download_ReplacesStale(t *testing.T) {
	bs := newBuildServer(t, 2048)
	s, cache := newLocalService(t, bs)

	path := cache.CachePath("firefox-esr_win64.exe")
	if err := os.WriteFile(path, bytes.Repeat([]byte("s"), 2048), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-5 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	before := testutil.ToFloat64(metrics.StaleFilesPurged)

	got, err := s.Download(context.Background(), "esr", "win", true)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	content, _ := os.ReadFile(got)
	if !bytes.Equal(content, bs.body) {
		t.Error("stale file should be purged and fetched again")
	}
	if after := testutil.ToFloat64(metrics.StaleFilesPurged); after != before+1 {
		t.Errorf("stale files purged = %v, want %v", after, before+1)
	}
}

func TestService_Download_UnknownMakesNoRequest(t *testing.T) {
	bs := newBuildServer(t, 16)
	s, _ := newLocalService(t, bs)

	if _, err := s.Download(context.Background(), "release", "beos", true); err == nil {
		t.Fatal("Download() error = nil, want unknown platform")
	}
	if bs.hits.Load() != 0 {
		t.Errorf("server requests = %d, want 0", bs.hits.Load())
	}
}
