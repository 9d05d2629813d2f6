package upload

import "time"

// Result is the outcome of an Upload call.
type Result struct {
	Success    bool
	HTTPStatus int
	Message    string
	Attempts   int
	FilePath   string
	FileSize   int64
	UploadID   string         // "id" field of the response, when present
	Data       map[string]any // decoded JSON response body
	Duration   time.Duration
}

// ProbeResult is the outcome of a connectivity check.
type ProbeResult struct {
	Reachable    bool
	HTTPStatus   int
	RouteMissing bool // server answered 404 on the base URL
	Latency      time.Duration
}
