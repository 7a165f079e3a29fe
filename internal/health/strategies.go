package health

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"
)

// Endpoint locates an OpenAI-compatible inference server
type Endpoint struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func (e Endpoint) url(path string) string {
	return strings.TrimSuffix(e.BaseURL, "/") + path
}

func (e Endpoint) client() *http.Client {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// --- Models Probe ---

// ModelsProbe lists the served models and checks that the requested one is among them
type ModelsProbe struct {
	Endpoint Endpoint
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *ModelsProbe) Check(modelName string) (int, error) {
	httpReq, err := http.NewRequest(http.MethodGet, p.Endpoint.url("/models"), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create models request: %w", err)
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.Endpoint.APIKey))

	startTime := time.Now()
	resp, err := p.Endpoint.client().Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("connectivity check failed: %w", err)
	}
	defer resp.Body.Close()

	latencyMs := int(time.Since(startTime).Milliseconds())
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return latencyMs, fmt.Errorf("authentication failed (invalid API key)")
	case IsQuotaError(resp.StatusCode, string(body)):
		return latencyMs, fmt.Errorf("quota exceeded: %s", string(body))
	case resp.StatusCode != http.StatusOK:
		return latencyMs, fmt.Errorf("models API error %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	if modelName == "" {
		return latencyMs, nil
	}

	var list modelList
	if err := json.Unmarshal(body, &list); err != nil {
		return latencyMs, fmt.Errorf("failed to parse models response: %w", err)
	}
	served := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID == modelName {
			return latencyMs, nil
		}
		served = append(served, m.ID)
	}
	return latencyMs, fmt.Errorf("model %q is not served (available: %s)", modelName, strings.Join(served, ", "))
}

// --- Vision Probe ---

// VisionProbe runs a real image completion: a blank camera-sized JPEG goes to the
// model, which must answer with some text. It catches models that are listed but
// cannot take images, at the cost of one inference per model.
type VisionProbe struct {
	Endpoint Endpoint
	Width    int // defaults to 640
	Height   int // defaults to 360
}

type completionReply struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (v *VisionProbe) Check(modelName string) (int, error) {
	if modelName == "" {
		return 0, fmt.Errorf("no model specified for vision probe")
	}

	frame, err := blankFrame(v.Width, v.Height)
	if err != nil {
		return 0, fmt.Errorf("failed to encode probe frame: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"model": modelName,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": `Is anyone in this picture? Reply as JSON: {"should_alert": false, "reasoning": "..."}`},
					{"type": "image_url", "image_url": map[string]string{
						"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
					}},
				},
			},
		},
		"max_tokens":  32,
		"temperature": 0,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal vision probe: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, v.Endpoint.url("/chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create vision probe: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.Endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.Endpoint.APIKey)
	}

	started := time.Now()
	resp, err := v.Endpoint.client().Do(req)
	if err != nil {
		return 0, fmt.Errorf("vision probe failed: %w", err)
	}
	defer resp.Body.Close()
	latencyMs := int(time.Since(started).Milliseconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return latencyMs, fmt.Errorf("failed to read vision probe response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if IsQuotaError(resp.StatusCode, string(body)) {
			return latencyMs, fmt.Errorf("quota exceeded: %s", truncateStr(string(body), 200))
		}
		return latencyMs, fmt.Errorf("vision probe API error %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	var reply completionReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return latencyMs, fmt.Errorf("vision probe returned invalid JSON: %w", err)
	}
	if len(reply.Choices) == 0 || strings.TrimSpace(reply.Choices[0].Message.Content) == "" {
		return latencyMs, fmt.Errorf("model %q returned no answer for an image", modelName)
	}
	return latencyMs, nil
}

// blankFrame encodes a mid-gray JPEG of the given size
func blankFrame(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		width, height = 640, 360
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
