package retry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError
const maxErrorBody = 512

// PostJSON marshals body, POSTs it to url with retries and returns the raw
// 2xx response body. Non-2xx responses become *StatusError.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, opts Options) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return Execute(ctx, opts, func(ctx context.Context, attempt int) ([]byte, int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create HTTP request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, 0, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if len(respBody) > maxErrorBody {
				respBody = respBody[:maxErrorBody]
			}
			return nil, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return respBody, resp.StatusCode, nil
	})
}
