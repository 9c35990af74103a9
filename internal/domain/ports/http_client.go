package ports

import "net/http"

// HTTPClient is the outbound HTTP port used by the gateway adapter.
// *http.Client satisfies it; tests substitute httptest servers or stubs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
