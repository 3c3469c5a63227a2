package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cronsched/internal/config"
	"cronsched/pkg/scheduler"
	logx "cronsched/pkg/logx"
)

// HTTPResult is the Completed payload of an http action.
type HTTPResult struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

func httpAction(log logx.Logger, client *http.Client, a config.ActionConfig, capture int) (scheduler.Resolver, error) {
	method := strings.ToUpper(strings.TrimSpace(a.Method))
	if method == "" {
		method = http.MethodGet
	}
	url := strings.TrimSpace(a.URL)
	// fail at build time on a malformed request
	if _, err := http.NewRequest(method, url, nil); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	headers := make(map[string]string, len(a.Headers))
	for k, v := range a.Headers {
		headers[k] = v
	}
	body := a.Body

	return func(ctx context.Context) (any, error) {
		var rd io.Reader
		if body != "" {
			rd = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if body != "" && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, int64(capture)+1))
		text := truncate(b, capture)

		log.Debug("http call finished", logx.String("method", method), logx.Int("status", resp.StatusCode))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Status: resp.StatusCode, Body: text}
		}
		return HTTPResult{Status: resp.StatusCode, Body: text}, nil
	}, nil
}
