package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fragmentworks/fragment-gateway/internal/domain"
	"github.com/fragmentworks/fragment-gateway/internal/provider"
	"github.com/fragmentworks/fragment-gateway/internal/ratelimit"
	"github.com/fragmentworks/fragment-gateway/internal/registry"
	"github.com/fragmentworks/fragment-gateway/internal/repository"
	"github.com/fragmentworks/fragment-gateway/internal/schema"
)

// =============================================================================
// Mock Implementations (Interface-Based Mocking Pattern)
// =============================================================================

type MockLimiter struct {
	CheckFunc func(ctx context.Context, key string, max int, window time.Duration) (ratelimit.Decision, error)
	Calls     atomic.Int32
}

func (m *MockLimiter) Check(ctx context.Context, key string, max int, window time.Duration) (ratelimit.Decision, error) {
	m.Calls.Add(1)
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, key, max, window)
	}
	return ratelimit.Decision{Allowed: true, Amount: max, Remaining: max - 1, Reset: time.Now().Add(window)}, nil
}

type MockFactory struct {
	HasServerCredentialFunc func(ctx context.Context, providerID string) (bool, error)
	ResolveFunc             func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error)
}

func (m *MockFactory) HasServerCredential(ctx context.Context, providerID string) (bool, error) {
	if m.HasServerCredentialFunc != nil {
		return m.HasServerCredentialFunc(ctx, providerID)
	}
	return false, nil
}

func (m *MockFactory) Resolve(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, model, cfg)
	}
	return nil, errors.New("not implemented")
}

type MockClient struct {
	IDValue    string
	StreamFunc func(ctx context.Context, req provider.Request) (<-chan string, <-chan error)
	LastReq    provider.Request
}

func (m *MockClient) ProviderID() string {
	return m.IDValue
}

func (m *MockClient) Stream(ctx context.Context, req provider.Request) (<-chan string, <-chan error) {
	m.LastReq = req
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return streamOf(), closedErrs()
}

// streamOf builds a delta channel that emits chunks and closes cleanly.
func streamOf(chunks ...string) <-chan string {
	deltas := make(chan string, len(chunks))
	for _, c := range chunks {
		deltas <- c
	}
	close(deltas)
	return deltas
}

func closedErrs() <-chan error {
	errs := make(chan error)
	close(errs)
	return errs
}

func errOf(err error) <-chan error {
	errs := make(chan error, 1)
	errs <- err
	close(errs)
	return errs
}

const fragmentDoc = `{"commentary":"Building a calculator.","template":"nextjs-developer","title":"Calculator","description":"A calculator.","code":"export default function C() {}"}`

func streamingClient(doc string) *MockClient {
	return &MockClient{
		IDValue: "openai",
		StreamFunc: func(ctx context.Context, req provider.Request) (<-chan string, <-chan error) {
			mid := len(doc) / 2
			return streamOf(doc[:mid], doc[mid:]), closedErrs()
		},
	}
}

func newTestHandler(limiter *MockLimiter, factory *MockFactory) (*Handler, *repository.InMemoryUsageRepository) {
	usage := repository.NewInMemoryUsageRepository()
	h := NewHandler(HandlerConfig{
		Limiter:              limiter,
		Factory:              factory,
		Usage:                usage,
		RateLimitMaxRequests: 10,
		RateLimitWindow:      24 * time.Hour,
		MaxRequestDuration:   5 * time.Second,
	})
	return h, usage
}

func generateBody(t *testing.T, req domain.GenerationRequest) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewReader(data)
}

func calculatorRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: domain.MessageContent{{Type: domain.PartTypeText, Text: "Build a calculator"}}},
		},
		Template: registry.TemplateAuto,
		Model:    domain.ModelDescriptor{ID: "gpt-4o", ProviderID: registry.ProviderOpenAI},
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestGenerate_MalformedBody(t *testing.T) {
	limiter := &MockLimiter{}
	h, _ := newTestHandler(limiter, &MockFactory{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if limiter.Calls.Load() != 0 {
		t.Error("malformed requests must terminate before admission control")
	}
}

func TestGenerate_UnknownTemplate(t *testing.T) {
	h, _ := newTestHandler(&MockLimiter{}, &MockFactory{})

	req := calculatorRequest()
	req.Template = "no-such-template"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, req)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerate_UnsupportedProvider(t *testing.T) {
	h, _ := newTestHandler(&MockLimiter{}, &MockFactory{})

	req := calculatorRequest()
	req.Model = domain.ModelDescriptor{ID: "some-model", ProviderID: "azure"}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, req)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerate_SuccessStreamsFragments(t *testing.T) {
	client := streamingClient(fragmentDoc)
	limiter := &MockLimiter{}
	factory := &MockFactory{
		ResolveFunc: func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
			return client, nil
		},
	}
	h, usage := newTestHandler(limiter, factory)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, calculatorRequest())))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}
	if limiter.Calls.Load() != 1 {
		t.Errorf("admission checks = %d, want 1", limiter.Calls.Load())
	}

	// every line is a valid fragment, the last one complete
	var last schema.Fragment
	var lines int
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		lines++
		if err := json.Unmarshal(scanner.Bytes(), &last); err != nil {
			t.Fatalf("line %d is not a fragment: %v", lines, err)
		}
	}
	if lines == 0 {
		t.Fatal("no fragments streamed")
	}
	if last.Title != "Calculator" {
		t.Errorf("final title = %q, want Calculator", last.Title)
	}
	if last.Code == "" {
		t.Error("final fragment has no code")
	}

	recent := usage.Recent(1)
	if len(recent) != 1 || recent[0].Status != "success" {
		t.Errorf("usage record = %+v, want one success", recent)
	}
}

func TestGenerate_AtQuotaBoundary(t *testing.T) {
	reset := time.Now().Add(6 * time.Hour)
	limiter := &MockLimiter{
		CheckFunc: func(ctx context.Context, key string, max int, window time.Duration) (ratelimit.Decision, error) {
			return ratelimit.Decision{Allowed: false, Amount: max, Remaining: 0, Reset: reset}, nil
		},
	}
	h, _ := newTestHandler(limiter, &MockFactory{})

	req := httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, calculatorRequest()))
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got == "" || got == "0" {
		t.Errorf("X-RateLimit-Reset = %q, want non-zero timestamp", got)
	}
	if !strings.Contains(rec.Body.String(), "request limit") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestGenerate_CallerCredentialSkipsAdmission(t *testing.T) {
	limiter := &MockLimiter{}
	factory := &MockFactory{
		ResolveFunc: func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
			return streamingClient(fragmentDoc), nil
		},
	}
	h, _ := newTestHandler(limiter, factory)

	req := calculatorRequest()
	req.Config.APIKey = "sk-caller"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, req)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if limiter.Calls.Load() != 0 {
		t.Errorf("admission checks = %d, caller credential must skip the limiter entirely", limiter.Calls.Load())
	}
}

func TestGenerate_OperatorCredentialSkipsAdmission(t *testing.T) {
	limiter := &MockLimiter{}
	factory := &MockFactory{
		HasServerCredentialFunc: func(ctx context.Context, providerID string) (bool, error) {
			return true, nil
		},
		ResolveFunc: func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
			return streamingClient(fragmentDoc), nil
		},
	}
	h, _ := newTestHandler(limiter, factory)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, calculatorRequest())))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if limiter.Calls.Load() != 0 {
		t.Errorf("admission checks = %d, want 0", limiter.Calls.Load())
	}
}

func TestGenerate_ProviderErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unauthorized", &domain.ProviderError{Provider: "openai", StatusCode: 401, Message: "invalid api key"}, http.StatusForbidden},
		{"forbidden", &domain.ProviderError{Provider: "openai", StatusCode: 403, Message: "forbidden"}, http.StatusForbidden},
		{"provider limit", &domain.ProviderError{Provider: "openai", StatusCode: 429, Message: "rate limit exceeded"}, http.StatusTooManyRequests},
		{"limit text without 429", &domain.ProviderError{Provider: "openai", StatusCode: 400, Message: "monthly limit reached"}, http.StatusTooManyRequests},
		{"service unavailable", &domain.ProviderError{Provider: "openai", StatusCode: 503, Message: "service unavailable"}, statusOverloaded},
		{"overloaded", &domain.ProviderError{Provider: "anthropic", StatusCode: 529, Message: "overloaded_error"}, statusOverloaded},
		{"unmapped status", &domain.ProviderError{Provider: "openai", StatusCode: 418, Message: "teapot"}, http.StatusInternalServerError},
		{"plain error", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &MockFactory{
				ResolveFunc: func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
					return &MockClient{
						IDValue: "openai",
						StreamFunc: func(ctx context.Context, req provider.Request) (<-chan string, <-chan error) {
							return streamOf(), errOf(tt.err)
						},
					}, nil
				},
			}
			h, _ := newTestHandler(&MockLimiter{}, factory)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, calculatorRequest())))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if strings.Contains(rec.Body.String(), "teapot") || strings.Contains(rec.Body.String(), "connection refused") {
				t.Error("provider error detail leaked to the caller")
			}
		})
	}
}

func TestGenerate_MissingCredential(t *testing.T) {
	factory := &MockFactory{
		ResolveFunc: func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
			return nil, domain.ErrMissingCredential
		},
	}
	h, _ := newTestHandler(&MockLimiter{}, factory)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, calculatorRequest())))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestGenerate_SanitizesBeforeProviderCall(t *testing.T) {
	client := streamingClient(fragmentDoc)
	factory := &MockFactory{
		ResolveFunc: func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
			return client, nil
		},
	}
	h, _ := newTestHandler(&MockLimiter{}, factory)

	req := calculatorRequest()
	req.Messages = []domain.Message{
		{Role: domain.RoleUser, Content: domain.MessageContent{
			{Type: domain.PartTypeText, Text: "▲ test \U0001F4AC"},
			{Type: domain.PartTypeImage, Image: "https://example.com/▲.png"},
		}},
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, req)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}

	got := client.LastReq.Messages[0].Content
	if got[0].Text != "[up-triangle] test [chat]" {
		t.Errorf("forwarded text = %q, want %q", got[0].Text, "[up-triangle] test [chat]")
	}
	if got[1].Image != "https://example.com/▲.png" {
		t.Error("non-textual parts must pass through untouched")
	}

	for _, r := range client.LastReq.System {
		if r > 0x7E {
			t.Errorf("system prompt contains non-ASCII rune %U after sanitization", r)
		}
	}
}

func TestGenerate_StringContentDecodes(t *testing.T) {
	client := streamingClient(fragmentDoc)
	factory := &MockFactory{
		ResolveFunc: func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
			return client, nil
		},
	}
	h, _ := newTestHandler(&MockLimiter{}, factory)

	body := `{"messages":[{"role":"user","content":"Build a calculator"}],"template":"auto","model":{"id":"gpt-4o","providerId":"openai"},"config":{}}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if client.LastReq.Messages[0].Content.Text() != "Build a calculator" {
		t.Errorf("text = %q", client.LastReq.Messages[0].Content.Text())
	}
}

func TestGenerate_Timeout(t *testing.T) {
	factory := &MockFactory{
		ResolveFunc: func(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
			return &MockClient{
				IDValue: "openai",
				StreamFunc: func(ctx context.Context, req provider.Request) (<-chan string, <-chan error) {
					deltas := make(chan string)
					errs := make(chan error)
					go func() {
						<-ctx.Done()
						close(deltas)
						close(errs)
					}()
					return deltas, errs
				},
			}, nil
		},
	}

	h := NewHandler(HandlerConfig{
		Limiter:              &MockLimiter{},
		Factory:              factory,
		RateLimitMaxRequests: 10,
		RateLimitWindow:      24 * time.Hour,
		MaxRequestDuration:   50 * time.Millisecond,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", generateBody(t, calculatorRequest())))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 on timeout", rec.Code)
	}
}

func TestListModels_HiddenProviders(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Limiter:         &MockLimiter{},
		Factory:         &MockFactory{},
		HiddenProviders: []string{registry.ProviderXAI},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Models []domain.ModelDescriptor `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Models) == 0 {
		t.Fatal("no models listed")
	}
	for _, m := range resp.Models {
		if m.ProviderID == registry.ProviderXAI {
			t.Errorf("hidden provider model %q leaked", m.ID)
		}
	}
}

func TestListTemplates(t *testing.T) {
	h := NewHandler(HandlerConfig{Limiter: &MockLimiter{}, Factory: &MockFactory{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/templates", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nextjs-developer") {
		t.Error("template catalog missing nextjs-developer")
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHandler(HandlerConfig{Limiter: &MockLimiter{}, Factory: &MockFactory{}})

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}
