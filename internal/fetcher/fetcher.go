// Package fetcher downloads provider API responses with politeness rate
// limiting and bounded retry on transient failures.
package fetcher

import (
	"context"
	"net/url"
)

// Fetcher defines the interface for querying a provider JSON API.
type Fetcher interface {
	// GetJSON issues a GET to rawURL with the given query parameters and
	// decodes the response body into out.
	GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error
}
