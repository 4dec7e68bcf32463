// Package osvdev is a client for the osv.dev vulnerability database API.
package osvdev

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/depscan/depscan/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.osv.dev"

	// QueryBatchEndpoint is the URL for posting batched queries to OSV.
	QueryBatchEndpoint = "/v1/querybatch"
	// GetEndpoint is the URL for getting vulnerabilities from OSV.
	GetEndpoint = "/v1/vulns"

	// MaxQueriesPerQueryBatchRequest is a limit set in osv.dev's API, so is not configurable
	MaxQueriesPerQueryBatchRequest = 1000
)

// OSVClient talks to osv.dev. All requests, batch and detail alike, pass
// through the same Limiter.
type OSVClient struct {
	HTTPClient  *http.Client
	Config      ClientConfig
	BaseHostURL string
	Limiter     *rate.Limiter
	Metrics     *metrics.Metrics
}

// DefaultClient returns a client for the public API without rate limiting.
func DefaultClient() *OSVClient {
	return &OSVClient{
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Config:      DefaultConfig(),
		BaseHostURL: DefaultBaseURL,
	}
}

// GetVulnByID is an interface to this endpoint: https://google.github.io/osv.dev/get-v1-vulns/
func (c *OSVClient) GetVulnByID(ctx context.Context, id string) (*Vulnerability, error) {
	resp, err := c.makeRetryRequest(ctx, GetEndpoint, func(hc *http.Client) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseHostURL+GetEndpoint+"/"+url.PathEscape(id), nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)

		return hc.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var vuln Vulnerability
	if err := json.NewDecoder(resp.Body).Decode(&vuln); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}

	return &vuln, nil
}

// QueryBatch is an interface to this endpoint: https://google.github.io/osv.dev/post-v1-querybatch/
//
// The queries are sent as a single request, so there can be no more than
// MaxQueriesPerQueryBatchRequest of them. Results are in query order.
func (c *OSVClient) QueryBatch(ctx context.Context, queries []*Query) (*BatchedResponse, error) {
	if len(queries) > MaxQueriesPerQueryBatchRequest {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(queries), MaxQueriesPerQueryBatchRequest)
	}

	requestBytes, err := json.Marshal(BatchedQuery{Queries: queries})
	if err != nil {
		return nil, err
	}

	resp, err := c.makeRetryRequest(ctx, QueryBatchEndpoint, func(hc *http.Client) (*http.Response, error) {
		// Make sure request buffer is inside retry, if outside
		// http request would finish the buffer, and retried requests would be empty
		requestBuf := bytes.NewBuffer(requestBytes)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseHostURL+QueryBatchEndpoint, requestBuf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)

		return hc.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var osvResp BatchedResponse
	if err := json.NewDecoder(resp.Body).Decode(&osvResp); err != nil {
		return nil, err
	}

	if len(osvResp.Results) != len(queries) {
		return nil, fmt.Errorf("querybatch returned %d results for %d queries", len(osvResp.Results), len(queries))
	}

	return &osvResp, nil
}

// QueryBatchWithPaging follows next_page_token for every query that has one,
// up to Config.MaxPageDepth extra requests. Whatever was fetched before a
// paging failure is returned together with an *ErrDuringPaging.
func (c *OSVClient) QueryBatchWithPaging(ctx context.Context, queries []*Query) (*BatchedResponse, error) {
	batchResp, err := c.QueryBatch(ctx, queries)
	if err != nil {
		return nil, err
	}

	pending := make([]int, 0)
	for i, res := range batchResp.Results {
		if res.NextPageToken != "" {
			pending = append(pending, i)
		}
	}

	for depth := 1; len(pending) > 0; depth++ {
		if depth > c.Config.MaxPageDepth {
			return batchResp, &ErrDuringPaging{
				PageDepth: depth,
				Inner:     errors.New("page depth limit reached"),
			}
		}
		if ctx.Err() != nil {
			return batchResp, &ErrDuringPaging{PageDepth: depth, Inner: ctx.Err()}
		}

		nextQueries := make([]*Query, len(pending))
		for j, i := range pending {
			query := *queries[i]
			query.PageToken = batchResp.Results[i].NextPageToken
			nextQueries[j] = &query
		}

		nextResp, err := c.QueryBatch(ctx, nextQueries)
		if err != nil {
			return batchResp, &ErrDuringPaging{PageDepth: depth, Inner: err}
		}

		stillPending := pending[:0]
		for j, res := range nextResp.Results {
			i := pending[j]
			batchResp.Results[i].Vulns = append(batchResp.Results[i].Vulns, res.Vulns...)
			// keep the token so callers can tell the result is not exhaustive
			batchResp.Results[i].NextPageToken = res.NextPageToken
			if res.NextPageToken != "" {
				stillPending = append(stillPending, i)
			}
		}
		pending = stillPending
	}

	return batchResp, nil
}

func (c *OSVClient) setHeaders(req *http.Request) {
	if c.Config.UserAgent != "" {
		req.Header.Set("User-Agent", c.Config.UserAgent)
	}
}

// makeRetryRequest returns the first 200 response. Network errors, 429 and
// 5xx responses are retried; other statuses are returned at once.
func (c *OSVClient) makeRetryRequest(ctx context.Context, endpoint string, action func(hc *http.Client) (*http.Response, error)) (*http.Response, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	var lastErr error
	for i := range c.Config.MaxRetryAttempts {
		if i > 0 {
			c.Metrics.Retry(endpoint)
			if err := sleep(ctx, c.retryDelay(i, lastErr)); err != nil {
				return nil, err
			}
		}
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		resp, err := action(hc)
		if err != nil {
			c.Metrics.ObserveRequest(endpoint, metrics.OutcomeNetwork, time.Since(start))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &NetworkError{Endpoint: endpoint, Err: err}

			continue
		}

		if resp.StatusCode == http.StatusOK {
			c.Metrics.ObserveRequest(endpoint, metrics.OutcomeSuccess, time.Since(start))
			return resp, nil
		}

		lastErr = responseError(endpoint, resp)
		var respErr *ResponseError
		switch {
		case errors.As(lastErr, &respErr) && respErr.ClientError():
			c.Metrics.ObserveRequest(endpoint, metrics.OutcomeClientError, time.Since(start))
			return nil, lastErr
		case errors.As(lastErr, new(*RateLimitedError)):
			c.Metrics.ObserveRequest(endpoint, metrics.OutcomeRateLimited, time.Since(start))
		default:
			c.Metrics.ObserveRequest(endpoint, metrics.OutcomeServerError, time.Since(start))
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts were made")
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// retryDelay is attempt² seconds scaled by the backoff multiplier plus
// jitter, unless the server asked for a specific wait.
func (c *OSVClient) retryDelay(attempt int, lastErr error) time.Duration {
	var rl *RateLimitedError
	if errors.As(lastErr, &rl) && rl.RetryAfter > 0 {
		return min(rl.RetryAfter, c.Config.MaxRetryAfter)
	}

	// we do not need to use a cryptographically secure random jitter, this is just to spread out the retry requests
	// #nosec G404
	jitter := rand.Float64() * c.Config.JitterMultiplier * float64(attempt)
	backoff := float64(attempt*attempt) * c.Config.BackoffDurationMultiplier

	return time.Duration((backoff + jitter) * float64(time.Second))
}

// responseError consumes and closes the body of a non-200 response.
func responseError(endpoint string, resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)

		return &RateLimitedError{
			Endpoint:   endpoint,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read error response from server: %w", err)
	}

	return &ResponseError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(bytes.TrimSpace(body)),
	}
}

// parseRetryAfter accepts both the delay-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
