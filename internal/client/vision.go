package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VisionRequest is the wire request for the vision endpoint
type VisionRequest struct {
	Mode        string `json:"mode"`
	TimeoutMS   int    `json:"timeout_ms"`
	Raw         bool   `json:"raw"`
	Filename    string `json:"filename"`
	ImageBase64 string `json:"image_base64"`
}

// TextBlock is one recognized text region
type TextBlock struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// VisionMeta carries timing and backend details for a vision response
type VisionMeta struct {
	DurationMS    int64    `json:"duration_ms"`
	Backend       string   `json:"backend"`
	ParseWarnings []string `json:"parse_warnings,omitempty"`
}

// VisionResult is the outcome of one vision probe. LicenseRequired marks
// the HTTP 402 outcome, which is recognized rather than treated as a
// failure.
type VisionResult struct {
	Success         bool
	LicenseRequired bool
	TextBlocks      []TextBlock
	Meta            VisionMeta
	ResponseTime    time.Duration
	Error           string
}

// visionResponse is the wire response for the vision endpoint
type visionResponse struct {
	TextBlocks []TextBlock `json:"text_blocks"`
	Meta       VisionMeta  `json:"meta"`
}

// Vision issues one vision probe. Transport and status failures fold into
// the result the same way Generate does.
func (c *Client) Vision(ctx context.Context, req VisionRequest) VisionResult {
	body, err := json.Marshal(req)
	if err != nil {
		return VisionResult{Error: fmt.Sprintf("marshal request: %v", err)}
	}

	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/vision", bytes.NewReader(body))
	if err != nil {
		return VisionResult{ResponseTime: time.Since(start), Error: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return VisionResult{ResponseTime: time.Since(start), Error: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		// License enforcement is a recognized outcome, not a failure.
		return VisionResult{
			Success:         true,
			LicenseRequired: true,
			ResponseTime:    time.Since(start),
		}
	case resp.StatusCode != http.StatusOK:
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return VisionResult{
			ResponseTime: time.Since(start),
			Error:        fmt.Sprintf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(errText))),
		}
	}

	var vr visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return VisionResult{ResponseTime: time.Since(start), Error: fmt.Sprintf("decode response: %v", err)}
	}

	return VisionResult{
		Success:      true,
		TextBlocks:   vr.TextBlocks,
		Meta:         vr.Meta,
		ResponseTime: time.Since(start),
	}
}
