package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 512
)

// Config holds the connection settings shared by all adapters.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type jsonClient struct {
	service    string
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func newJSONClient(service string, cfg Config) jsonClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return jsonClient{
		service:    service,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends one request under the adapter timeout and returns the raw body of a
// 2xx response. Nothing is retried here.
func (c jsonClient) do(ctx context.Context, op, method, path string, in any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, &Error{Service: c.service, Op: op, Err: errors.New("base url is not configured")}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, &Error{Service: c.service, Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &Error{Service: c.service, Op: op, Err: err}
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(c.service, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(c.service, op, err)
	}

	if resp.StatusCode >= 300 {
		return nil, &Error{
			Service:    c.service,
			Op:         op,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Err:        errors.New(errorMessage(respBody)),
		}
	}
	return respBody, nil
}

func (c jsonClient) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	respBody, err := c.do(ctx, op, method, path, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Service: c.service, Op: op, Err: fmt.Errorf("unable to parse response: %w", err)}
	}
	return nil
}

func (c jsonClient) malformed(op, format string, args ...any) error {
	return &Error{Service: c.service, Op: op, Err: fmt.Errorf("malformed response: "+format, args...)}
}

func errorMessage(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	if len(msg) > maxErrorBodyLen {
		msg = msg[:maxErrorBodyLen]
	}
	return msg
}
