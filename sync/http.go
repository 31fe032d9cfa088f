package sync

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPRequestTimeout is the default timeout for all HTTP requests to external APIs.
const HTTPRequestTimeout = 60 * time.Second

// transportRetryDelay is the pause before the single retry of a failed request.
const transportRetryDelay = 250 * time.Millisecond

// retryTransport retries a request exactly once on a network-level failure.
// HTTP error statuses are responses, not failures, and pass through untouched.
// A request that fails both attempts surfaces as a TransportError.
type retryTransport struct {
	base http.RoundTripper
}

func (t retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	// A consumed body without a GetBody rewind cannot be resent.
	retryable := req.Body == nil || req.GetBody != nil

	var resp *http.Response
	attempt := func() error {
		r := req
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			r = req.Clone(req.Context())
			r.Body = body
		}
		var err error
		resp, err = base.RoundTrip(r)
		if err != nil && !retryable {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(transportRetryDelay), 1)
	if err := backoff.Retry(attempt, backoff.WithContext(policy, req.Context())); err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	return resp, nil
}

// newHTTPClient returns the client used for all outbound API calls.
// The transport argument is overridable for tests; nil means the default.
func newHTTPClient(transport http.RoundTripper) *http.Client {
	return &http.Client{
		Timeout:   HTTPRequestTimeout,
		Transport: retryTransport{base: transport},
	}
}
