package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

type Client struct {
	HTTP  *http.Client
	Token string
	Log   *zap.Logger
	// MaxElapsed bounds the whole retry loop; zero means 3s.
	MaxElapsed time.Duration
}

// DoJSON sends req and decodes a 200 body into out. Transport errors and 5xx
// are retried with exponential backoff; other statuses and decode errors are not.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	req = req.WithContext(ctx)
	safeURL := redactURL(req.URL)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 1 * time.Second
	exp.MaxElapsedTime = 3 * time.Second
	if c.MaxElapsed > 0 {
		exp.MaxElapsedTime = c.MaxElapsed
	}

	op := func() error {
		resp, err := httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return redactErr(err, safeURL)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return &StatusError{Code: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: string(body)})
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("http_retry", zap.String("url", safeURL), zap.Duration("wait", wait), zap.Error(err))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// redactURL drops credentials and the query string, which may carry API keys.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.ForceQuery = false
	return c.String()
}

func redactErr(err error, safeURL string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = safeURL
	}
	return err
}
