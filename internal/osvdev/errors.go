package osvdev

import (
	"errors"
	"fmt"
	"time"
)

// ErrMaxRetriesExceeded is wrapped by the error returned once every attempt
// of a request has failed with a retryable error.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// ErrBatchTooLarge is returned for a batch over MaxQueriesPerQueryBatchRequest.
var ErrBatchTooLarge = errors.New("too many queries in one batch")

// NetworkError is a transport level failure talking to the database.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitedError is an HTTP 429 response.
type RateLimitedError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s (retry after %s)", e.Endpoint, e.RetryAfter)
	}

	return "rate limited by " + e.Endpoint
}

// ResponseError is any other non-200 response.
type ResponseError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ResponseError) Error() string {
	kind := "server"
	if e.ClientError() {
		kind = "client"
	}

	return fmt.Sprintf("%s error: status=%q body=%s", kind, e.Status, e.Body)
}

// ClientError reports whether the status is a 4xx, which is never retried.
func (e *ResponseError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type ErrDuringPaging struct {
	PageDepth int
	Inner     error
}

func (e *ErrDuringPaging) Error() string {
	return fmt.Sprintf("error during paging at depths %d - %s", e.PageDepth, e.Inner)
}

func (e *ErrDuringPaging) Unwrap() error {
	return e.Inner
}
