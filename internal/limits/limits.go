package limits

// Size limits for payloads exchanged with the daemon and remote sites

const (
	// JSON is the standard size limit for API request/response payloads (1MB)
	JSON = 1 << 20

	// ErrorBody is the maximum size read from error response bodies (1KB)
	ErrorBody = 1024

	// ErrorSnippet is how much of an unexpected remote body ends up in an error message
	ErrorSnippet = 200

	// ConfigBundle caps the zipped per-site configuration download (64MB)
	ConfigBundle = 64 << 20

	// ReleaseArchive caps a sidecar release download (500MB)
	ReleaseArchive = 500 << 20

	// LogLine is the longest forwarded sidecar log line, in runes
	LogLine = 2000
)
