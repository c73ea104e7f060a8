package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/gateway"
	"gateway/internal/gatewayerr"
	"gateway/internal/provider"
	"gateway/internal/routing"
	"gateway/internal/strategy"
)

// fakeClient is a provider.Client double returning a canned response without
// making any network call.
type fakeClient struct {
	response  domain.ChatResponse
	invokeErr error
}

func (f *fakeClient) Provider() domain.Provider { return domain.ProviderOpenAI }

func (f *fakeClient) Invoke(ctx context.Context, req domain.ChatRequest, strat strategy.Strategy) (domain.ChatResponse, error) {
	if f.invokeErr != nil {
		return domain.ChatResponse{}, f.invokeErr
	}
	return f.response, nil
}

func (f *fakeClient) Stream(ctx context.Context, req domain.ChatRequest, strat strategy.Strategy) (<-chan provider.StreamItem, error) {
	out := make(chan provider.StreamItem)
	close(out)
	return out, nil
}

func newTestServer(client *fakeClient, apiKey string) *Server {
	svc := &gateway.Service{
		Clients: map[domain.Provider]provider.Client{domain.ProviderOpenAI: client},
		Router:  routing.NewRouter(8),
		DefaultMaxTokens: gateway.DefaultMaxTokens{
			OpenAI:    1024,
			Anthropic: 1024,
			Titan:     1024,
		},
	}
	cfg := config.Default()
	cfg.ServerAPIKey = apiKey
	return NewServer(cfg, svc, nil, nil, nil, provider.NewModelCatalog(nil))
}

func TestHandleChatCompletionsHappyPath(t *testing.T) {
	client := &fakeClient{response: domain.ChatResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-mini",
		Choices: []domain.Choice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Text: "hi"},
			FinishReason: domain.FinishStop,
		}},
	}}
	srv := newTestServer(client, "")

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["id"] != "chatcmpl-1" {
		t.Errorf("id = %v, want chatcmpl-1", decoded["id"])
	}
	if decoded["object"] != "chat.completion" {
		t.Errorf("object = %v, want chat.completion", decoded["object"])
	}
}

// The target_format query parameter selects the egress dialect independently
// of which provider served the request.
func TestHandleChatCompletionsTargetFormatBedrockClaude(t *testing.T) {
	client := &fakeClient{response: domain.ChatResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-mini",
		Choices: []domain.Choice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Text: "hi"},
			FinishReason: domain.FinishStop,
		}},
	}}
	srv := newTestServer(client, "")

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?target_format=bedrock_claude", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "message" || decoded["role"] != "assistant" {
		t.Errorf("expected an Anthropic-shaped response, got %s", rec.Body.String())
	}
	if decoded["stop_reason"] != "end_turn" {
		t.Errorf("stop_reason = %v, want end_turn", decoded["stop_reason"])
	}
}

func TestHandleChatCompletionsUnknownTargetFormat(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "")
	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?target_format=bedrock_llama", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 before any provider call", rec.Code)
	}
}

func TestHandleChatCompletionsMalformedBody(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "")
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestHandleChatCompletionsUpstreamErrorMapsToStatus(t *testing.T) {
	client := &fakeClient{invokeErr: gatewayerr.New(gatewayerr.KindRateLimited, "too many requests")}
	srv := newTestServer(client, "")

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429; body = %s", rec.Code, rec.Body.String())
	}
}

func TestWithAuthRejectsMissingBearerToken(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "secret-key")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWithAuthRejectsWrongBearerToken(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "secret-key")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWithAuthAcceptsCorrectBearerToken(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "secret-key")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestWithAuthDisabledWhenKeyBlank(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when ServerAPIKey is blank", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var decoded map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["status"] != "ok" {
		t.Errorf("status field = %q, want ok", decoded["status"])
	}
}

func TestCORSPreflightReturnsNoContent(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "")
	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestFilesEndpointsDisabledWhenStoreNil(t *testing.T) {
	srv := newTestServer(&fakeClient{}, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when the files store is nil", rec.Code)
	}
}
