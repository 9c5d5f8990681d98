// Package httpapi 通过 HTTP 暴露问答、历史查询与路由接口。
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/IMBotPlatform/IMBotRAG/pkg/conversation"
	"github.com/IMBotPlatform/IMBotRAG/pkg/router"
)

// defaultMaxRequestBodySize 是请求体的大小上限（1MB）。
const defaultMaxRequestBodySize = 1 << 20

// Pipeline 是 HTTP 层依赖的问答能力，*conversation.Pipeline 满足它。
type Pipeline interface {
	Ask(ctx context.Context, sessionID, input string) (*conversation.Answer, error)
	History(ctx context.Context, sessionID string) ([]conversation.Message, error)
}

// QueryRouter 是 /route 依赖的路由能力，*router.Router 满足它。
type QueryRouter interface {
	Route(ctx context.Context, input string) (router.Result, error)
}

// AskRequest 是 POST /sessions/{id}/ask 的请求体。
type AskRequest struct {
	Input string `json:"input"`
}

// AskResponse 是问答结果。
type AskResponse struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	Context   []string `json:"context"`
	Query     string   `json:"query"`
	Rewritten bool     `json:"rewritten"`
}

// HistoryResponse 是会话历史。
type HistoryResponse struct {
	SessionID string                 `json:"session_id"`
	Messages  []conversation.Message `json:"messages"`
}

// RouteResponse 是路由问答结果。
type RouteResponse struct {
	Destination router.Destination `json:"destination"`
	Answer      string             `json:"answer"`
}

// ErrorResponse 是错误响应体，Stage 仅在管线阶段失败时出现。
type ErrorResponse struct {
	Stage string `json:"stage,omitempty"`
	Error string `json:"error"`
}

// Handler 持有 HTTP 接口的依赖。
type Handler struct {
	pipeline Pipeline
	router   QueryRouter
	logger   zerolog.Logger
	timeout  time.Duration
}

// Option 配置 Handler。
type Option func(*Handler)

// WithRouter 启用 POST /route。
func WithRouter(r QueryRouter) Option {
	return func(h *Handler) {
		h.router = r
	}
}

// WithLogger 注入日志实例。
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithTimeout 设置单个请求的处理超时，0 表示不限制。
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// NewHandler 创建 HTTP 处理器。
func NewHandler(pipeline Pipeline, opts ...Option) *Handler {
	h := &Handler{
		pipeline: pipeline,
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes 返回挂好中间件与路由的 chi.Router。
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(hlog.NewHandler(h.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	if h.timeout > 0 {
		r.Use(chiMiddleware.Timeout(h.timeout))
	}

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Post("/ask", h.handleAsk)
		r.Get("/history", h.handleHistory)
	})
	r.Post("/route", h.handleRoute)
	return r
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req AskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		Error(w, http.StatusBadRequest, "input is required")
		return
	}

	answer, err := h.pipeline.Ask(r.Context(), sessionID, req.Input)
	if err != nil {
		h.stageFailure(w, r, err)
		return
	}

	JSON(w, http.StatusOK, AskResponse{
		SessionID: sessionID,
		Answer:    answer.Text,
		Context:   answer.Context,
		Query:     answer.Query,
		Rewritten: answer.Rewritten,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	msgs, err := h.pipeline.History(r.Context(), sessionID)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, HistoryResponse{SessionID: sessionID, Messages: msgs})
}

func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	if h.router == nil {
		Error(w, http.StatusNotImplemented, "router not configured")
		return
	}
	var req AskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		Error(w, http.StatusBadRequest, "input is required")
		return
	}

	res, err := h.router.Route(r.Context(), req.Input)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("route failed")
		JSON(w, http.StatusBadGateway, ErrorResponse{Stage: "route", Error: err.Error()})
		return
	}
	JSON(w, http.StatusOK, RouteResponse{Destination: res.Destination, Answer: res.Answer})
}

// stageFailure 把管线阶段错误映射为 502，其余错误为 500。
func (h *Handler) stageFailure(w http.ResponseWriter, r *http.Request, err error) {
	var stageErr *conversation.StageError
	if errors.As(err, &stageErr) {
		hlog.FromRequest(r).Error().Err(err).Str("stage", string(stageErr.Stage)).Msg("pipeline failed")
		JSON(w, http.StatusBadGateway, ErrorResponse{Stage: string(stageErr.Stage), Error: stageErr.Err.Error()})
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("pipeline failed")
	Error(w, http.StatusInternalServerError, err.Error())
}

// decodeBody 解析 JSON 请求体，失败时已写好 400 响应。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// JSON 以指定状态码写出 JSON 响应。
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error 写出 JSON 格式的错误响应。
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}
