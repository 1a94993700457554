package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firefox_downloader",
			Name:      "downloads_total",
			Help:      "Download attempts by outcome.",
		},
		[]string{"release", "platform", "outcome"},
	)

	BytesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firefox_downloader",
			Name:      "bytes_fetched_total",
			Help:      "Bytes written to the cache by completed transfers.",
		},
	)

	StaleFilesPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firefox_downloader",
			Name:      "stale_files_purged_total",
			Help:      "Cache files removed for exceeding the cache timeout.",
		},
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "firefox_downloader",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetch calls, including cache hits.",
			Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)
)

// Registry holds the downloader metrics
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(Downloads, BytesFetched, StaleFilesPurged, FetchDuration)
}

// WriteTextfile writes the registry in text format for a node_exporter textfile collector
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
