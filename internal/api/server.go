package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/process"

	"globalchat/internal/messages"
	"globalchat/internal/translation"
	"globalchat/internal/users"
	"globalchat/pkg/interfaces"
	"globalchat/pkg/types"
)

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetStats() map[string]int
}

// MessageService is the synchronous message surface served over HTTP.
type MessageService interface {
	Create(ctx context.Context, sender types.Identity, frame types.InboundFrame) (*types.RouteOutcome, error)
	Get(ctx context.Context, viewer types.Identity, id int64) (types.OutboundFrame, error)
	List(ctx context.Context, viewer types.Identity, skip, limit int) ([]types.OutboundFrame, error)
	Translate(ctx context.Context, viewer types.Identity, id int64, target string) (messages.TranslationResult, error)
	Delete(ctx context.Context, requester types.Identity, id int64) error
}

// UserSettings updates a user's translation preferences.
type UserSettings interface {
	UpdateSettings(ctx context.Context, id string, settings users.Settings) (types.Identity, error)
}

// HealthChecker reports storage health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies groups the collaborators of the HTTP server.
type Dependencies struct {
	Messages   MessageService
	Users      UserSettings
	Auth       interfaces.IdentityResolver
	Translator types.Translator
	Store      HealthChecker
	Registry   Registry
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps      Dependencies
	router    *http.ServeMux
	handler   http.Handler
	validate  *validator.Validate
	startedAt time.Time
	log       *slog.Logger
}

// NewServer initializes all dependencies and sets up routing
func NewServer(deps Dependencies, log *slog.Logger) *Server {
	s := &Server{
		deps:      deps,
		router:    http.NewServeMux(),
		validate:  validator.New(),
		startedAt: time.Now(),
		log:       log,
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS and JSON middleware applied to all routes for web client compatibility
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.healthCheck)

	s.router.Handle("GET /api/messages", s.authMiddleware(s.listMessages))
	s.router.Handle("POST /api/messages", s.authMiddleware(s.createMessage))
	s.router.Handle("GET /api/messages/{id}", s.authMiddleware(s.getMessage))
	s.router.Handle("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	s.router.Handle("POST /api/messages/{id}/translate", s.authMiddleware(s.translateMessage))

	s.router.Handle("GET /api/me", s.authMiddleware(s.getMe))
	s.router.Handle("PATCH /api/me", s.authMiddleware(s.updateMe))

	s.router.Handle("POST /api/translate", s.authMiddleware(s.translateText))
	s.router.Handle("POST /api/detect", s.authMiddleware(s.detectLanguage))

	s.handler = s.corsMiddleware(s.jsonMiddleware(s.router))
}

// ServeHTTP implements http.Handler for integration with the standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type ListMessagesResponse struct {
	Messages []types.OutboundFrame `json:"messages"`
	Skip     int                   `json:"skip"`
	Limit    int                   `json:"limit"`
}

type MessageResponse struct {
	Message types.OutboundFrame `json:"message"`
}

type TranslateMessageRequest struct {
	Language string `json:"language"`
}

type TranslateTextRequest struct {
	Text           string `json:"text" validate:"required"`
	TargetLanguage string `json:"target_language" validate:"required"`
}

type TranslateTextResponse struct {
	TranslatedText string `json:"translated_text"`
	Language       string `json:"language"`
}

type DetectRequest struct {
	Text string `json:"text" validate:"required"`
}

type DetectResponse struct {
	translation.Detection
	Name string `json:"name"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	System      map[string]any `json:"system"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// GET /api/messages?skip&limit - messages visible to the caller, newest first
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, viewer types.Identity) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", messages.DefaultPageSize)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	frames, err := s.deps.Messages.List(r.Context(), viewer, skip, limit)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, ListMessagesResponse{Messages: frames, Skip: skip, Limit: limit})
}

// POST /api/messages - route a message exactly like a websocket frame
func (s *Server) createMessage(w http.ResponseWriter, r *http.Request, sender types.Identity) {
	var frame types.InboundFrame
	if err := s.decode(r, &frame); err != nil {
		s.sendError(w, r, err)
		return
	}

	outcome, err := s.deps.Messages.Create(r.Context(), sender, frame)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	view, _ := outcome.Message.FrameFor(sender)
	s.sendJSON(w, http.StatusCreated, types.AckFrame{
		Type:         types.FrameTypeSent,
		Message:      view,
		Delivered:    outcome.Delivered(),
		Undelivered:  outcome.Undelivered(),
		Untranslated: append([]string{}, outcome.FailedLanguages...),
	})
}

// GET /api/messages/{id}
func (s *Server) getMessage(w http.ResponseWriter, r *http.Request, viewer types.Identity) {
	id, err := pathID(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	frame, err := s.deps.Messages.Get(r.Context(), viewer, id)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, MessageResponse{Message: frame})
}

// DELETE /api/messages/{id} - sender only
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request, requester types.Identity) {
	id, err := pathID(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if err := s.deps.Messages.Delete(r.Context(), requester, id); err != nil {
		s.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/messages/{id}/translate - body is optional and defaults to the caller's language
func (s *Server) translateMessage(w http.ResponseWriter, r *http.Request, viewer types.Identity) {
	id, err := pathID(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	var req TranslateMessageRequest
	if err := s.decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, r, err)
		return
	}

	result, err := s.deps.Messages.Translate(r.Context(), viewer, id, req.Language)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// GET /api/me
func (s *Server) getMe(w http.ResponseWriter, _ *http.Request, me types.Identity) {
	s.sendJSON(w, http.StatusOK, me)
}

// PATCH /api/me - update translation preferences
func (s *Server) updateMe(w http.ResponseWriter, r *http.Request, me types.Identity) {
	var settings users.Settings
	if err := s.decode(r, &settings); err != nil {
		s.sendError(w, r, err)
		return
	}
	updated, err := s.deps.Users.UpdateSettings(r.Context(), me.ID, settings)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, updated)
}

// POST /api/translate - ad-hoc translation, not cached
func (s *Server) translateText(w http.ResponseWriter, r *http.Request, _ types.Identity) {
	var req TranslateTextRequest
	if err := s.decode(r, &req); err != nil {
		s.sendError(w, r, err)
		return
	}

	target := translation.Normalize(req.TargetLanguage)
	text, err := s.deps.Translator.Translate(r.Context(), req.Text, target)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, TranslateTextResponse{TranslatedText: text, Language: target})
}

// POST /api/detect
func (s *Server) detectLanguage(w http.ResponseWriter, r *http.Request, _ types.Identity) {
	var req DetectRequest
	if err := s.decode(r, &req); err != nil {
		s.sendError(w, r, err)
		return
	}
	detection := translation.Detect(req.Text)
	s.sendJSON(w, http.StatusOK, DetectResponse{Detection: detection, Name: translation.DisplayName(detection.Language)})
}

// GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.deps.Store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.deps.Registry.GetStats(),
		System:      s.systemInfo(),
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func (s *Server) systemInfo() map[string]any {
	info := map[string]any{
		"goroutines":     runtime.NumGoroutine(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if mem, err := p.MemoryInfo(); err == nil {
		info["rss_bytes"] = mem.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		info["threads"] = threads
	}
	return info
}

// decode reads a JSON body and validates struct tags
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return types.NewValidationError("body", "invalid JSON")
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return types.NewValidationError(strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, types.NewValidationError(name, "must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to encode response", "error", err)
	}
}

// sendError maps domain errors onto the consistent error response format.
// Internal failures are logged with a request id and never echoed to clients.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := http.StatusInternalServerError, "internal error"

	var (
		verr *types.ValidationError
		terr *types.TranslationError
	)
	switch {
	case errors.As(err, &verr):
		code, message = http.StatusBadRequest, verr.Error()
	case errors.Is(err, io.EOF):
		code, message = http.StatusBadRequest, "request body is required"
	case errors.Is(err, types.ErrValidation):
		code, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, types.ErrUnauthenticated):
		code, message = http.StatusUnauthorized, "authentication required"
	case errors.Is(err, types.ErrForbidden):
		code, message = http.StatusForbidden, "only the sender may do this"
	case errors.Is(err, types.ErrMessageNotFound):
		code, message = http.StatusNotFound, "message not found"
	case errors.Is(err, types.ErrUserNotFound):
		code, message = http.StatusNotFound, "user not found"
	case errors.Is(err, types.ErrRateLimited):
		code, message = http.StatusTooManyRequests, "rate limit exceeded"
	case errors.As(err, &terr):
		code, message = http.StatusBadGateway, "translation unavailable"
	case errors.Is(err, types.ErrStorage):
		code, message = http.StatusServiceUnavailable, "storage unavailable"
	}

	requestID := ""
	if code >= http.StatusInternalServerError {
		requestID = uuid.NewString()
		s.log.Error("Request failed", "request_id", requestID, "method", r.Method, "path", r.URL.Path, "error", err)
	}

	s.sendJSON(w, code, ErrorResponse{
		Error:     http.StatusText(code),
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}
