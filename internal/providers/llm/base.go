package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sandevgo/localrag/pkg/retry"
)

type baseProvider struct {
	client  *http.Client
	retrier *retry.Retrier
	baseURL string
	apiKey  string
	model   string
}

func newBaseProvider(baseURL, apiKey, model string) baseProvider {
	return baseProvider{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		retrier: retry.NewRetrier(&retry.Config{
			MaxRetries:    2,
			BackoffFactor: 2,
			InitialDelay:  300 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			Jitter:        50 * time.Millisecond,
		}),
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
	}
}

func (b *baseProvider) doRequest(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return resp, nil
}

// doJSON sends the request and returns the body of a 200 response. Transport
// failures and 5xx responses are retried; other statuses fail immediately.
func (b *baseProvider) doJSON(ctx context.Context, method, path string, body any, headers map[string]string) ([]byte, error) {
	var data []byte

	err := b.retrier.Do(ctx, func() error {
		resp, err := b.doRequest(ctx, method, path, body, headers)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			data = raw
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("http %d: %s", resp.StatusCode, string(raw))
		default:
			return retry.Permanent(fmt.Errorf("http %d: %s", resp.StatusCode, string(raw)))
		}
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
