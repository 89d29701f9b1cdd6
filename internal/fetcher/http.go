package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/racetrail/ingest-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int

	// RateLimiters holds per-host politeness limiters. Hosts without an
	// entry fall back to DefaultRate.
	RateLimiters map[string]*rate.Limiter

	// DefaultRate is the requests-per-second ceiling for unlisted hosts.
	// Zero means 10 rps.
	DefaultRate rate.Limit
}

// HTTPFetcher implements Fetcher using net/http. Every request waits on the
// host's rate limiter first: the mandatory pre-request delay is part of the
// execution contract, not of request enumeration.
type HTTPFetcher struct {
	client      *http.Client
	opts        HTTPOptions
	limiters    map[string]*rate.Limiter
	defaultRate rate.Limit
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ingest-cli/1.0"
	}
	if opts.DefaultRate == 0 {
		opts.DefaultRate = 10
	}
	limiters := make(map[string]*rate.Limiter, len(opts.RateLimiters))
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:        opts,
		limiters:    limiters,
		defaultRate: opts.DefaultRate,
	}
}

// PolitenessLimiter builds a limiter that allows one request per interval,
// matching the fixed inter-request delay provider terms usually ask for.
func PolitenessLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(f.defaultRate, 1)
	}
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(f.defaultRate, 1)
}

// GetJSON issues a rate-limited GET with retry on transient failures and
// decodes the JSON response into out.
func (f *HTTPFetcher) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	body, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: f.opts.MaxRetries,
		OnRetry:     resilience.RetryLogger("fetcher", u.Host),
	}, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, u.String())
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "fetcher: decode response from %s", u.Host)
	}
	return nil
}

func (f *HTTPFetcher) get(ctx context.Context, fullURL string) ([]byte, error) {
	if err := f.limiterFor(fullURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: build request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		zap.L().Warn("fetcher: retryable status",
			zap.String("url", fullURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, resilience.NewTransientError(
			eris.Errorf("http %d from %s", resp.StatusCode, fullURL), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("fetcher: http %d from %s", resp.StatusCode, fullURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	return body, nil
}
