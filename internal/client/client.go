// Package client issues generation requests to the inference server and
// converts every outcome, including transport failures, into a uniform
// GenerationResult.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds one generation request end to end
const DefaultRequestTimeout = 5 * time.Minute

// DefaultTemperature is the sampling temperature sent with every request
const DefaultTemperature = 0.7

// GenerationResult is the uniform outcome of one generation request
type GenerationResult struct {
	Success      bool
	Response     string
	Tokens       int
	ResponseTime time.Duration
	Error        string
}

// generateRequest is the wire request for the generation endpoint
type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

// generateResponse is the wire response for non-streaming generation
type generateResponse struct {
	Response string `json:"response"`
}

// Client communicates with the inference server. One Client is acquired
// per batch of calls and released with Close at the end of that scope.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	temperature float64
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request total timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultRequestTimeout,
			Transport: transport,
		},
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases pooled connections held for the batch scope
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// CountTokens approximates a token count as a whitespace-split word count.
// This is a deliberate proxy, not a tokenizer count.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// Generate issues one generation request. All failures are folded into the
// result; this boundary never returns an error to the caller.
func (c *Client) Generate(ctx context.Context, model, prompt string, maxTokens int, stream bool) GenerationResult {
	payload := generateRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
		Stream:      stream,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return GenerationResult{Error: fmt.Sprintf("marshal request: %v", err)}
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return GenerationResult{ResponseTime: time.Since(start), Error: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return GenerationResult{ResponseTime: time.Since(start), Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return GenerationResult{
			ResponseTime: time.Since(start),
			Error:        fmt.Sprintf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(errText))),
		}
	}

	var text string
	if stream {
		text, err = readStream(resp.Body)
	} else {
		var gr generateResponse
		err = json.NewDecoder(resp.Body).Decode(&gr)
		text = gr.Response
	}
	if err != nil {
		return GenerationResult{ResponseTime: time.Since(start), Error: fmt.Sprintf("read response: %v", err)}
	}

	return GenerationResult{
		Success:      true,
		Response:     text,
		Tokens:       CountTokens(text),
		ResponseTime: time.Since(start),
	}
}

// readStream consumes "data: <token>" lines incrementally until the
// "data: [DONE]" terminator, concatenating tokens into the response text.
func readStream(r io.Reader) (string, error) {
	var sb strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		token := strings.TrimPrefix(line, "data: ")
		if token == "[DONE]" {
			return sb.String(), nil
		}
		sb.WriteString(token)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	// Stream ended without the terminator; keep what arrived.
	return sb.String(), nil
}

// Health probes the server's readiness endpoint
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
