package dictprov

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	lferrors "github.com/wordisle/lexiforge/pkg/errors"
)

// maxResponseBytes caps upstream response bodies.
const maxResponseBytes = 4 << 20

// doGet performs a rate-limited GET against a provider upstream and
// maps the status code into the error taxonomy: 429 honours
// Retry-After and records a rate-limit error, >=500 is a transient
// upstream error (retry policy belongs to the caller), any other >=400
// is permanent for this provider.
func doGet(req *http.Request, tr Transport, provider, host string) ([]byte, error) {
	ctx := req.Context()
	if err := tr.Limiter.Acquire(ctx, host); err != nil {
		return nil, lferrors.FromContextErr(err).WithProvider(provider)
	}
	defer tr.Limiter.Release(host)

	resp, err := tr.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, lferrors.FromContextErr(ctx.Err()).WithProvider(provider)
		}
		tr.Limiter.RecordError(host, 0)
		return nil, lferrors.Wrap(lferrors.KindUpstreamUnavailable, err, "request failed").WithProvider(provider)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		tr.Limiter.RecordError(host, retryAfter)
		return nil, lferrors.RateLimited(provider, retryAfter)

	case resp.StatusCode >= 500:
		tr.Limiter.RecordError(host, 0)
		return nil, lferrors.New(lferrors.KindUpstreamUnavailable,
			fmt.Sprintf("upstream returned %d", resp.StatusCode)).WithProvider(provider)

	case resp.StatusCode >= 400:
		tr.Limiter.RecordSuccess(host)
		e := lferrors.New(lferrors.KindProviderError,
			fmt.Sprintf("upstream returned %d", resp.StatusCode)).WithProvider(provider)
		e.Retryable = false
		return nil, e
	}

	if readErr != nil {
		tr.Limiter.RecordError(host, 0)
		return nil, lferrors.Wrap(lferrors.KindUpstreamUnavailable, readErr, "reading response").WithProvider(provider)
	}
	tr.Limiter.RecordSuccess(host)
	return body, nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
