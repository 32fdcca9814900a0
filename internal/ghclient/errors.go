package ghclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	gogithub "github.com/google/go-github/v68/github"
)

// Closed error taxonomy (spec.md §7). Every normalized error is one of
// these, via errors.As.
var (
	ErrNotFound   = errors.New("ghclient: not found")
	ErrValidation = errors.New("ghclient: validation failed")
	ErrAuth       = errors.New("ghclient: authentication/authorization failed")
	ErrFatal      = errors.New("ghclient: fatal")
)

// ErrRateLimited is returned when the Rate Governor defers a mutating call,
// or when GitHub itself reports exhaustion.
type ErrRateLimited struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("ghclient: rate limited, retry after %s", e.RetryAfter)
}

// ErrTransient wraps a retryable network/5xx failure with its attempt count.
type ErrTransient struct {
	Cause   error
	Attempt int
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("ghclient: transient error (attempt %d): %v", e.Attempt, e.Cause)
}

func (e *ErrTransient) Unwrap() error { return e.Cause }

// normalizeError maps a go-github error into the closed taxonomy
// (spec.md §4.3: 401/403-with-rate-limit-reset -> RateLimited, 404 ->
// NotFound, 422 -> Validation, 5xx/network -> Transient).
func normalizeError(err error, attempt int) error {
	if err == nil {
		return nil
	}

	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		retryAfter := time.Until(rle.Rate.Reset.Time)
		if retryAfter < 0 {
			retryAfter = time.Second
		}
		return &ErrRateLimited{RetryAfter: retryAfter}
	}

	var abuse *gogithub.AbuseRateLimitError
	if errors.As(err, &abuse) {
		retryAfter := time.Minute
		if abuse.RetryAfter != nil {
			retryAfter = *abuse.RetryAfter
		}
		return &ErrRateLimited{RetryAfter: retryAfter}
	}

	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, ghErr.Message)
		case http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", ErrValidation, ghErr.Message)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrAuth, ghErr.Message)
		}
		if ghErr.Response.StatusCode >= 500 {
			return &ErrTransient{Cause: err, Attempt: attempt}
		}
		return fmt.Errorf("%w: %s", ErrFatal, ghErr.Message)
	}

	return &ErrTransient{Cause: err, Attempt: attempt}
}
