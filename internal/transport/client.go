package transport

import (
	"io"
	"net/http"
	"time"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/logger"
	"github.com/avast/retry-go/v4"
)

const (
	defaultAttempts    = 7
	defaultBaseDelay   = time.Second
	defaultMaxJitter   = 500 * time.Millisecond
	defaultHTTPTimeout = 30 * time.Second
)

// Client wraps an http.Client with a bounded retry policy: exponential
// backoff with jitter, retrying transport failures and 4xx/5xx responses.
// A 401 is never retried; an expired token has to be refreshed by the
// caller, not hammered.
type Client struct {
	httpc     *http.Client
	attempts  uint
	baseDelay time.Duration
	maxJitter time.Duration
}

type Option func(*Client)

// WithAttempts overrides the retry attempt bound.
func WithAttempts(n uint) Option {
	return func(c *Client) {
		c.attempts = n
	}
}

// WithBaseDelay overrides the initial backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithMaxJitter overrides the jitter bound added to each backoff delay.
func WithMaxJitter(d time.Duration) Option {
	return func(c *Client) {
		c.maxJitter = d
	}
}

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpc:     &http.Client{Timeout: defaultHTTPTimeout},
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
		maxJitter: defaultMaxJitter,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do executes req under the retry policy. On success the response body is
// open and owned by the caller. On failure the body has been drained and
// closed, and the returned error wraps a StatusError when a response was
// received.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	errFactory := errors.New()

	var resp *http.Response
	err := retry.Do(
		func() error {
			attemptReq, err := cloneRequest(req)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			r, err := c.httpc.Do(attemptReq)
			if err != nil {
				return err
			}

			if r.StatusCode >= http.StatusBadRequest {
				drain(r)
				statusErr := &StatusError{Code: r.StatusCode}
				if r.StatusCode == http.StatusUnauthorized {
					return retry.Unrecoverable(statusErr)
				}
				return statusErr
			}

			resp = r

			return nil
		},
		retry.Context(req.Context()),
		retry.Attempts(c.attempts),
		retry.Delay(c.baseDelay),
		retry.MaxJitter(c.maxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug().
				Uint("attempt", n+1).
				Str("url", req.URL.String()).
				Err(err).
				Msg("Retrying request")
		}),
	)
	if err != nil {
		return nil, errFactory.Wrap(ErrRetriesExhausted, err)
	}

	return resp, nil
}

// cloneRequest produces a request safe to issue again; bodies are rewound
// through GetBody, which net/http sets for the reader types we use.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}

	return clone, nil
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, r.Body)
	_ = r.Body.Close()
}
