package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"github.com/mcmanager/minimanager/system"
)

// requestOnce executes a single authenticated request against the control
// plane.
func (c *client) requestOnce(ctx context.Context, method, path string, body io.Reader, opts ...func(r *http.Request)) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fmt.Sprintf("minimanager/v%s", system.Version))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	for _, o := range opts {
		o(req)
	}

	debugLogRequest(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return &Response{res}, nil
}

// request executes the request, retrying transport errors, server errors and
// rate limited responses with exponential backoff. When every attempt fails
// the last error is returned.
func (c *client) request(ctx context.Context, method, path string, body []byte, opts ...func(r *http.Request)) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)

	var res *Response
	err := backoff.Retry(func() error {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		attempt, err := c.requestOnce(ctx, method, path, r, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if attempt.StatusCode >= http.StatusInternalServerError || attempt.StatusCode == http.StatusTooManyRequests {
			_, _ = attempt.Read()
			return attempt.Error()
		}
		res = attempt
		return nil
	}, policy)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return res, nil
}

func (c *client) get(ctx context.Context, path string, query q) (*Response, error) {
	return c.request(ctx, http.MethodGet, path, nil, func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	})
}

func (c *client) post(ctx context.Context, path string, data interface{}) (*Response, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return c.request(ctx, http.MethodPost, path, b)
}

// Response wraps an HTTP response from the control plane with helpers for
// error handling and decoding.
type Response struct {
	*http.Response
}

// HasError reports whether the response code is outside the 2xx range.
func (r *Response) HasError() bool {
	if r.Response == nil {
		return false
	}
	return r.StatusCode >= 300 || r.StatusCode < 200
}

// Read returns the body and replaces it with an in-memory copy so it can be
// read again. The original body is closed.
func (r *Response) Read() ([]byte, error) {
	if r.Response == nil {
		return nil, errors.New("http: attempting to read missing response")
	}
	var b []byte
	if r.Response.Body != nil {
		b, _ = io.ReadAll(r.Response.Body)
		_ = r.Response.Body.Close()
	}
	r.Response.Body = io.NopCloser(bytes.NewBuffer(b))
	return b, nil
}

// BindJSON decodes the body into v.
func (r *Response) BindJSON(v interface{}) error {
	b, err := r.Read()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "http: could not unmarshal response")
	}
	return nil
}

// Error returns the first error reported in the response body as a
// RequestError, or nil if the request succeeded.
func (r *Response) Error() error {
	if !r.HasError() {
		return nil
	}
	var errs RequestErrors
	_ = r.BindJSON(&errs)
	e := &RequestError{}
	if len(errs.Errors) > 0 {
		e = &errs.Errors[0]
	}
	e.response = r.Response
	return e
}

// Logs the request into the debug log. The authorization header is redacted.
func debugLogRequest(req *http.Request) {
	if l, ok := log.Log.(*log.Logger); ok && l.Level != log.DebugLevel {
		return
	}
	headers := make(map[string][]string)
	for k, v := range req.Header {
		if k == "Authorization" && len(v) > 0 && v[0] != "" {
			headers[k] = []string{"(redacted)"}
			continue
		}
		headers[k] = v
	}
	log.WithFields(log.Fields{
		"method":   req.Method,
		"endpoint": req.URL.String(),
		"headers":  headers,
	}).Debug("making request to external HTTP endpoint")
}
