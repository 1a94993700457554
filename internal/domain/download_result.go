package domain

// DownloadResult represents the result of a successful fetch
type DownloadResult struct {
	// Path is the local path of the complete artifact
	Path string

	// Size is the artifact size in bytes
	Size int64

	// CacheHit indicates the existing file matched the declared length and no body was read
	CacheHit bool
}
