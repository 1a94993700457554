package domain

import "time"

// DownloadOutcome is the final state of a download attempt
type DownloadOutcome string

const (
	OutcomeFetched     DownloadOutcome = "fetched"
	OutcomeCacheHit    DownloadOutcome = "cache_hit"
	OutcomeFailed      DownloadOutcome = "failed"
	OutcomeInterrupted DownloadOutcome = "interrupted"
	OutcomeInvalid     DownloadOutcome = "invalid"
)

// DownloadRecord is one entry of the download history
type DownloadRecord struct {
	ID         string
	Release    string
	Platform   string
	URL        string
	Path       string
	Bytes      int64
	Outcome    DownloadOutcome
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the attempt took
func (r *DownloadRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// OutcomeFor maps a fetch error to the outcome recorded in history
func OutcomeFor(result *DownloadResult, err error) DownloadOutcome {
	switch {
	case err == nil && result != nil && result.CacheHit:
		return OutcomeCacheHit
	case err == nil:
		return OutcomeFetched
	case IsUnknownIdentifier(err):
		return OutcomeInvalid
	case IsInterrupted(err):
		return OutcomeInterrupted
	default:
		return OutcomeFailed
	}
}
