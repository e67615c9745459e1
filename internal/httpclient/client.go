package httpclient

import (
	"net/http"
	"time"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout.
// Every external call in the pipeline goes through a client built
// here so that no request can hang indefinitely.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}
