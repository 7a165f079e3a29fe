package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"roomwatch/internal/config"
	"roomwatch/internal/health"
	"roomwatch/internal/models"
	"roomwatch/internal/utils"
)

// ErrCooldown is returned without calling the endpoint while the model is rate limited
var ErrCooldown = errors.New("inference endpoint in cooldown")

// ErrEmptyResponse is returned when the endpoint answers without a choice
var ErrEmptyResponse = errors.New("no response from vision model")

// APIError is a non-200 answer from the inference endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if health.IsQuotaError(e.StatusCode, e.Body) {
		return fmt.Sprintf("quota exceeded: %s", e.Body)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

const defaultSystemPrompt = "You are a helpful assistant."

// Client sends frame windows to an OpenAI-compatible chat completions endpoint
type Client struct {
	cfg           config.InferenceConfig
	httpClient    *http.Client
	limiter       *rate.Limiter
	healthService *health.Service
}

// NewClient creates an inference client. healthSvc is optional.
func NewClient(cfg config.InferenceConfig, healthSvc *health.Service) *Client {
	limit := rate.Inf
	if cfg.MaxRPS > 0 {
		limit = rate.Limit(cfg.MaxRPS)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:       rate.NewLimiter(limit, 1),
		healthService: healthSvc,
	}
}

// AnalyzeRequest is one decision tick's worth of input
type AnalyzeRequest struct {
	Room         string
	Model        string
	SystemPrompt string
	Prompt       string
	Frames       []models.Frame // oldest first
	FrameMode    string
	FPS          float64
	Schema       map[string]interface{} // sent as guided_json when enabled
}

// AnalyzeResponse carries the raw model text; parsing is the caller's job
type AnalyzeResponse struct {
	Content  string
	Model    string
	Latency  time.Duration
	Attempts int
}

// Analyze calls the endpoint, retrying network errors, timeouts, 429 and 5xx with backoff.
// Other client errors fail at once.
func (c *Client) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	if len(req.Frames) == 0 {
		return nil, fmt.Errorf("no frames to analyze")
	}

	if c.healthService != nil {
		if in, until := c.healthService.InCooldown(req.Model); in {
			return nil, fmt.Errorf("%w until %s", ErrCooldown, until.Format(time.RFC3339))
		}
	}

	requestJSON, err := json.Marshal(c.buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	backoff := utils.NewBackoff(c.cfg.RetryBackoff, c.cfg.MaxRetryBackoff)
	maxAttempts := c.cfg.MaxRetries + 1
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		content, model, err := c.call(ctx, requestJSON)
		if err == nil {
			if c.healthService != nil {
				c.healthService.MarkHealthy(req.Model)
			}
			if model == "" {
				model = req.Model
			}
			return &AnalyzeResponse{
				Content:  content,
				Model:    model,
				Latency:  time.Since(start),
				Attempts: attempt,
			}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		statusCode := statusOf(err)
		if !health.IsRetryable(statusCode) || attempt == maxAttempts {
			break
		}

		delay := backoff.Next()
		log.Printf("[VISION] %s: attempt %d/%d failed, retrying in %v: %v",
			req.Room, attempt, maxAttempts, delay, err)
		if err := utils.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if c.healthService != nil {
		c.healthService.MarkFailure(req.Model, lastErr.Error(), statusOf(lastErr))
	}
	return nil, lastErr
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func (c *Client) buildRequestBody(req *AnalyzeRequest) map[string]interface{} {
	content := make([]map[string]interface{}, 0, len(req.Frames)+1)

	if req.FrameMode == config.FrameModeVideo {
		encoded := make([]string, len(req.Frames))
		for i, f := range req.Frames {
			encoded[i] = base64.StdEncoding.EncodeToString(f.Data)
		}
		content = append(content, map[string]interface{}{
			"type":      "video_url",
			"video_url": map[string]interface{}{"url": "data:video/jpeg;base64," + strings.Join(encoded, ",")},
		})
	} else {
		for _, f := range req.Frames {
			content = append(content, map[string]interface{}{
				"type": "image_url",
				"image_url": map[string]interface{}{
					"url": utils.DataURL(utils.DetectImageMime(f.Data), f.Data),
				},
			})
		}
	}
	content = append(content, map[string]interface{}{"type": "text", "text": req.Prompt})

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	requestBody := map[string]interface{}{
		"model": req.Model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": content},
		},
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	}

	if req.FrameMode == config.FrameModeVideo && req.FPS > 0 {
		requestBody["mm_processor_kwargs"] = map[string]interface{}{"fps": []float64{req.FPS}}
	}
	if c.cfg.GuidedJSON && req.Schema != nil {
		requestBody["guided_json"] = req.Schema
	}

	return requestBody
}

// call makes a single request and returns the first choice's text
func (c *Client) call(ctx context.Context, requestJSON []byte) (string, string, error) {
	apiURL := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(c.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(requestJSON))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.APIKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyStr := string(body)
		log.Printf("[VISION] API error: %d - %s", resp.StatusCode, truncate(bodyStr, 300))
		return "", "", &APIError{StatusCode: resp.StatusCode, Body: bodyStr}
	}

	var apiResp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return "", "", ErrEmptyResponse
	}

	return apiResp.Choices[0].Message.Content, apiResp.Model, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
