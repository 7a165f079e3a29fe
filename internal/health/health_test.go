package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		code int
		body string
		want bool
	}{
		{429, "", true},
		{500, "Rate limit reached for requests", true},
		{503, "The server is overloaded", true},
		{400, "invalid image", false},
		{500, "CUDA out of memory", false},
	}

	for _, tt := range tests {
		if got := IsQuotaError(tt.code, tt.body); got != tt.want {
			t.Errorf("IsQuotaError(%d, %q) = %v, want %v", tt.code, tt.body, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	for _, code := range []int{0, 408, 429, 500, 502, 503} {
		if !IsRetryable(code) {
			t.Errorf("expected %d to be retryable", code)
		}
	}
	for _, code := range []int{400, 401, 404, 422} {
		if IsRetryable(code) {
			t.Errorf("expected %d not to be retryable", code)
		}
	}
}

func TestService_FailureThreshold(t *testing.T) {
	s := NewService(nil, 3)
	s.Register("qwen")

	if s.Status("qwen") != StatusUnknown {
		t.Fatalf("expected unknown before any call, got %s", s.Status("qwen"))
	}

	s.MarkFailure("qwen", "connection refused", 0)
	s.MarkFailure("qwen", "connection refused", 0)
	if s.Status("qwen") != StatusDegraded {
		t.Errorf("expected degraded below threshold, got %s", s.Status("qwen"))
	}

	s.MarkFailure("qwen", "connection refused", 0)
	if s.Status("qwen") != StatusUnavailable {
		t.Errorf("expected unavailable at threshold, got %s", s.Status("qwen"))
	}

	s.MarkHealthy("qwen")
	h, _ := s.Get("qwen")
	if h.Status != StatusHealthy || h.FailureCount != 0 || h.LastError != "" {
		t.Errorf("expected clean healthy entry after success, got %+v", h)
	}
}

func TestService_Cooldown(t *testing.T) {
	s := NewService(nil, 3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.MarkFailure("qwen", "too many requests", 429)

	in, until := s.InCooldown("qwen")
	if !in {
		t.Fatal("expected cooldown after 429")
	}
	if want := now.Add(30 * time.Second); !until.Equal(want) {
		t.Errorf("expected cooldown until %v, got %v", want, until)
	}

	now = now.Add(31 * time.Second)
	if in, _ := s.InCooldown("qwen"); in {
		t.Error("cooldown should have expired")
	}
	if s.Status("qwen") != StatusUnknown {
		t.Errorf("expired cooldown should read as unknown, got %s", s.Status("qwen"))
	}
}

func TestService_GetStatus(t *testing.T) {
	s := NewService(nil, 1)
	s.MarkHealthy("a")
	s.MarkFailure("b", "boom", 500)

	status := s.GetStatus()
	if status["total"].(int) != 2 {
		t.Errorf("expected 2 models, got %v", status["total"])
	}
	counts := status["counts"].(map[string]int)
	if counts["healthy"] != 1 || counts["unavailable"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestModelsProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer EMPTY" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"object":"list","data":[{"id":"Qwen/Qwen2.5-VL-7B-Instruct"}]}`))
	}))
	defer server.Close()

	probe := &ModelsProbe{Endpoint: Endpoint{BaseURL: server.URL + "/v1/", APIKey: "EMPTY"}}

	if _, err := probe.Check("Qwen/Qwen2.5-VL-7B-Instruct"); err != nil {
		t.Fatalf("expected served model to pass, got %v", err)
	}

	_, err := probe.Check("llava")
	if err == nil || !strings.Contains(err.Error(), "not served") {
		t.Errorf("expected not-served error, got %v", err)
	}

	s := NewService(probe, 1)
	if err := s.CheckNow("llava"); err == nil {
		t.Error("expected CheckNow to fail for missing model")
	}
	if s.Status("llava") != StatusUnavailable {
		t.Errorf("expected unavailable, got %s", s.Status("llava"))
	}
}

func TestVisionProbe_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model crashed"))
	}))
	defer server.Close()

	probe := &VisionProbe{Endpoint: Endpoint{BaseURL: server.URL}}
	_, err := probe.Check("qwen")
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected API error 500, got %v", err)
	}
}

type visionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Content []struct {
			Type     string `json:"type"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		} `json:"content"`
	} `json:"messages"`
}

type fakeCompletions struct {
	mu     sync.Mutex
	answer string
	last   visionRequest
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.URL.Path != "/chat/completions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewDecoder(r.Body).Decode(&f.last)
	w.Write([]byte(f.answer))
}

func (f *fakeCompletions) setAnswer(a string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = a
}

func (f *fakeCompletions) lastRequest() visionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func TestVisionProbe_SendsFrameAndReadsAnswer(t *testing.T) {
	completions := &fakeCompletions{answer: `{"choices":[{"message":{"content":"{\"should_alert\": false, \"reasoning\": \"empty\"}"}}]}`}
	server := httptest.NewServer(completions)
	defer server.Close()

	probe := &VisionProbe{Endpoint: Endpoint{BaseURL: server.URL}, Width: 64, Height: 36}
	if _, err := probe.Check("qwen"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	got := completions.lastRequest()
	if got.Model != "qwen" || len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Errorf("expected a JPEG data URL, got %.40s", got.Messages[0].Content[1].ImageURL.URL)
	}

	completions.setAnswer(`{"choices":[]}`)
	if _, err := probe.Check("qwen"); err == nil || !strings.Contains(err.Error(), "no answer") {
		t.Errorf("expected no-answer error, got %v", err)
	}
}
