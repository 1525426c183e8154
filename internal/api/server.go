package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/feedback"
	"WealthPilot/internal/observability/metrics"
	"WealthPilot/internal/orchestrator"
	"WealthPilot/internal/storage"
	"WealthPilot/pkg/logger"
)

// Pinger 探测一个上游数据面是否可达。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Upstreams 汇总健康检查要探测的数据面。
type Upstreams struct {
	Broker Pinger
	Market Pinger
	Cities Pinger
}

// Server 暴露对话引擎的 REST 接口。
type Server struct {
	addr        string
	authToken   string
	orch        *orchestrator.Orchestrator
	feedback    *feedback.Service
	invocations storage.InvocationRepository
	upstreams   Upstreams
}

// Config 汇总服务器依赖。AuthToken 为空时不启用鉴权。
type Config struct {
	Address     string
	AuthToken   string
	Orch        *orchestrator.Orchestrator
	Feedback    *feedback.Service
	Invocations storage.InvocationRepository
	Upstreams   Upstreams
}

// NewServer 构造 API 服务实例。
func NewServer(cfg Config) *Server {
	return &Server{
		addr:        cfg.Address,
		authToken:   cfg.AuthToken,
		orch:        cfg.Orch,
		feedback:    cfg.Feedback,
		invocations: cfg.Invocations,
		upstreams:   cfg.Upstreams,
	}
}

// Start 启动 HTTP 服务,直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/chat", s.instrument("chat", s.requireAuth(http.HandlerFunc(s.handleChat))))
	mux.Handle("/api/v1/feedback", s.instrument("feedback", s.requireAuth(http.HandlerFunc(s.handleFeedback))))
	mux.Handle("/api/v1/invocations", s.instrument("invocations", s.requireAuth(http.HandlerFunc(s.handleInvocations))))
	mux.Handle("/api/v1/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type chatRequest struct {
	SessionID   string `json:"session_id"`
	Query       string `json:"query"`
	BearerToken string `json:"bearer_token,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.orch.Chat(r.Context(), orchestrator.Request{
		SessionID: req.SessionID,
		Query:     req.Query,
	})
	if err != nil {
		status := statusFor(err)
		logger.L().Warn("chat request failed",
			"session", req.SessionID, "status", status, "error", err.Error())
		writeError(w, status, userMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type feedbackRequest struct {
	Query    string `json:"query"`
	Response string `json:"response"`
	Rating   int    `json:"rating"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.feedback.Submit(r.Context(), req.Query, req.Response, req.Rating); err != nil {
		writeError(w, statusFor(err), userMessage(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	records, err := s.invocations.ListLatest(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invocation log unavailable")
		return
	}
	if records == nil {
		records = []storage.InvocationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invocations": records, "count": len(records)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]bool{
		"broker": ping(ctx, s.upstreams.Broker),
		"market": ping(ctx, s.upstreams.Market),
		"cities": ping(ctx, s.upstreams.Cities),
	}
	status := "ok"
	for _, healthy := range checks {
		if !healthy {
			status = "degraded"
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "upstreams": checks})
}

func ping(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	return p.Ping(ctx) == nil
}

// requireAuth 校验静态 Bearer Token。令牌未配置时放行所有请求。
// Authorization 头优先,头缺失时退回请求体里的 bearer_token 字段。
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = bodyBearerToken(r)
		}
		if token == "" || token != s.authToken {
			logger.Audit().Warn("access_denied",
				"path", r.URL.Path, "method", r.Method, "status", http.StatusUnauthorized)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// maxAuthBodyBytes 限制为取令牌而读取的请求体大小。
const maxAuthBodyBytes = 1 << 20

// bodyBearerToken 从 JSON 请求体中取 bearer_token,并把请求体原样放回供处理器解码。
func bodyBearerToken(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBodyBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var payload struct {
		BearerToken string `json:"bearer_token"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return strings.TrimSpace(payload.BearerToken)
}

// instrument 记录每个请求的指标与审计日志。
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, elapsed)
		logger.Audit().Info("api_request",
			"handler", name, "method", r.Method, "path", r.URL.Path,
			"status", recorder.status, "duration_ms", elapsed.Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "server shutting down")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

func statusFor(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeSessionBusy:
		return http.StatusTooManyRequests
	case xerrors.CodeQueueFailure, xerrors.CodeStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userMessage(err error) string {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeSessionBusy:
		return "this session is still processing the previous message"
	case xerrors.CodeInvalidArgument:
		return "invalid request"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
