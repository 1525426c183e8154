package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"WealthPilot/internal/feedback"
	"WealthPilot/internal/storage"
)

type okPinger struct{}

func (okPinger) Ping(_ context.Context) error { return nil }

type downPinger struct{}

func (downPinger) Ping(_ context.Context) error { return errors.New("unreachable") }

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	invRepo, err := storage.NewMemoryInvocationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("invocation repo: %v", err)
	}
	return NewServer(Config{
		Address:     "127.0.0.1:0",
		AuthToken:   authToken,
		Feedback:    feedback.NewService(feedback.NewMemoryQueue(8)),
		Invocations: invRepo,
		Upstreams:   Upstreams{Broker: okPinger{}, Market: okPinger{}, Cities: okPinger{}},
	})
}

func TestRequireAuthRejectsBadToken(t *testing.T) {
	s := newTestServer(t, "secret")
	called := false
	h := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong", "Bearer nope"},
		{"malformed", "secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/invocations", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if called {
				t.Fatal("handler must not run without a valid token")
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != "unauthorized" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestRequireAuthAcceptsToken(t *testing.T) {
	s := newTestServer(t, "secret")
	h := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invocations", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthBodyToken(t *testing.T) {
	s := newTestServer(t, "secret")
	var decoded chatRequest
	h := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 中间件取走令牌后,请求体必须原样可供处理器解码。
		if err := json.NewDecoder(r.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode restored body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	body := `{"session_id":"s1","query":"how is my portfolio","bearer_token":"secret"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 with a valid body token", rec.Code)
	}
	if decoded.Query != "how is my portfolio" || decoded.BearerToken != "secret" {
		t.Fatalf("restored body decoded to %+v", decoded)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"query":"hi","bearer_token":"wrong"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with a bad body token", rec.Code)
	}
}

func TestRequireAuthOpenWhenUnconfigured(t *testing.T) {
	s := newTestServer(t, "")
	h := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invocations", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 without auth configured", rec.Code)
	}
}

func TestHandleFeedbackAccepted(t *testing.T) {
	s := newTestServer(t, "")

	body := `{"query":"how is my portfolio","response":"fine","rating":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleFeedback(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "accepted" {
		t.Fatalf("body = %v", resp)
	}
}

func TestHandleFeedbackInvalidRating(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", strings.NewReader(`{"rating":7}`))
	rec := httptest.NewRecorder()
	s.handleFeedback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFeedbackRejectsGet(t *testing.T) {
	s := newTestServer(t, "")

	rec := httptest.NewRecorder()
	s.handleFeedback(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feedback", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandleInvocationsEmptyListIsArray(t *testing.T) {
	s := newTestServer(t, "")

	rec := httptest.NewRecorder()
	s.handleInvocations(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invocations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// 空结果必须是 [] 而不是 null,客户端依赖这一点。
	if !strings.Contains(rec.Body.String(), `"invocations":[]`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandleInvocationsLimit(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.invocations.Save(ctx, storage.InvocationRecord{ID: id, Capability: "portfolio_analysis"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	s.handleInvocations(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invocations?limit=2", nil))

	var resp struct {
		Invocations []storage.InvocationRecord `json:"invocations"`
		Count       int                        `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Invocations) != 2 {
		t.Fatalf("count = %d, records = %d", resp.Count, len(resp.Invocations))
	}
	if resp.Invocations[0].ID != "c" {
		t.Fatalf("first record = %q, want newest first", resp.Invocations[0].ID)
	}
}

func TestHandleHealthDegraded(t *testing.T) {
	s := newTestServer(t, "")
	s.upstreams.Market = downPinger{}

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var resp struct {
		Status    string          `json:"status"`
		Upstreams map[string]bool `json:"upstreams"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", resp.Status)
	}
	if resp.Upstreams["broker"] != true || resp.Upstreams["market"] != false {
		t.Fatalf("upstreams = %v", resp.Upstreams)
	}
}

func TestHandleHealthNilPingerIsDown(t *testing.T) {
	s := newTestServer(t, "")
	s.upstreams = Upstreams{}

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
