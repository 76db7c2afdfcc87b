// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/broadcast"
	"github.com/jeranaias/rigrun-chat/internal/export"
	"github.com/jeranaias/rigrun-chat/internal/model"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/tasks"
	"github.com/jeranaias/rigrun-chat/internal/telemetry"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize bounds request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxMessageLength bounds a user message in runes.
	MaxMessageLength = 100000

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// Store is the conversation persistence used by the API.
type Store interface {
	CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error)
	GetConversationForUser(ctx context.Context, id, userID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]storage.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error
	DisplayTitle(ctx context.Context, conv *model.Conversation) (string, error)
	DeriveTitleFromFirstMessage(ctx context.Context, conv *model.Conversation, msg *model.Message) (bool, error)
	CreateMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	Messages(ctx context.Context, conversationID string) ([]*model.Message, error)
	Ping(ctx context.Context) error
}

// Dispatcher schedules completion runs.
type Dispatcher interface {
	Enqueue(ctx context.Context, conversationID, messageID string) (*tasks.Task, error)
	Task(id string) *tasks.Task
	Cancel(id string) bool
	Stats() tasks.Stats
}

// Streamer serves a live update stream over a websocket.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, stream string)
}

// ModelChecker reports whether the model provider is reachable.
type ModelChecker interface {
	Name() string
	CheckRunning(ctx context.Context) error
}

// UsageReporter summarizes model token usage.
type UsageReporter interface {
	Summary() telemetry.Summary
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP API for conversations, messages and live streams.
type Server struct {
	addr   string
	router *http.ServeMux
	server *http.Server

	store      Store
	dispatcher Dispatcher
	streamer   Streamer
	model      ModelChecker
	renderer   *render.Renderer
	usage      UsageReporter
	auth       *AuthConfig
	cors       *CORSConfig
	limiter    *RateLimiter
	logger     *log.Logger

	mu sync.RWMutex
}

// NewServer creates a server listening on addr. An empty addr uses
// DefaultAddr.
func NewServer(addr string, store Store, dispatcher Dispatcher) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:       addr,
		router:     http.NewServeMux(),
		store:      store,
		dispatcher: dispatcher,
		auth:       DefaultAuthConfig(),
		cors:       DefaultCORSConfig(),
		limiter:    NewRateLimiter(0, 1),
		renderer:   render.New(),
		logger:     log.Default(),
	}
	s.setupRoutes()
	return s
}

// WithStreamer sets the websocket stream handler.
func (s *Server) WithStreamer(st Streamer) *Server {
	s.streamer = st
	return s
}

// WithRenderer sets the markdown renderer used for HTML export.
func (s *Server) WithRenderer(r *render.Renderer) *Server {
	s.renderer = r
	return s
}

// WithUsage enables GET /usage.
func (s *Server) WithUsage(u UsageReporter) *Server {
	s.usage = u
	return s
}

// WithModel sets the model provider reported by /health.
func (s *Server) WithModel(m ModelChecker) *Server {
	s.model = m
	return s
}

// WithAuth sets the authentication configuration.
func (s *Server) WithAuth(config *AuthConfig) *Server {
	s.auth = config
	if h := config.UserHeader; h != "" && !slices.Contains(s.cors.AllowedHeaders, h) {
		s.cors.AllowedHeaders = append(s.cors.AllowedHeaders, h)
	}
	return s
}

// WithCORS sets the allowed cross-origin browser origins.
func (s *Server) WithCORS(origins []string) *Server {
	s.cors.AllowedOrigins = origins
	return s
}

// WithRateLimit limits each client IP to perSecond requests with bursts.
func (s *Server) WithRateLimit(perSecond float64, burst int) *Server {
	s.limiter = NewRateLimiter(perSecond, burst)
	return s
}

// WithLogger sets the request logger.
func (s *Server) WithLogger(l *log.Logger) *Server {
	s.logger = l
	return s
}

// SetRateLimit changes the rate limit of a running server.
func (s *Server) SetRateLimit(perSecond float64, burst int) {
	s.limiter.SetLimit(perSecond, burst)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	s.router.HandleFunc("GET /chats", s.handleListChats)
	s.router.HandleFunc("POST /chats", s.handleCreateChat)
	s.router.HandleFunc("GET /chats/{id}", s.handleShowChat)
	s.router.HandleFunc("DELETE /chats/{id}", s.handleDeleteChat)
	s.router.HandleFunc("POST /chats/{id}/messages", s.handleCreateMessage)
	s.router.HandleFunc("GET /chats/{id}/export", s.handleExportChat)
	s.router.HandleFunc("GET /usage", s.handleUsage)

	s.router.HandleFunc("GET /tasks/{id}", s.handleShowTask)
	s.router.HandleFunc("DELETE /tasks/{id}", s.handleCancelTask)

	s.router.HandleFunc("GET /chats/{id}/stream", s.handleChatStream)
	s.router.HandleFunc("GET /sidebar/stream", s.handleSidebarStream)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		RateLimitMiddleware(s.limiter),
		AuthMiddleware(s.auth, "/health"),
	)(s.router)
}

// ============================================================================
// TYPES
// ============================================================================

// ChatResponse is a conversation as returned by the API.
type ChatResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatDetailResponse is a conversation with its messages.
type ChatDetailResponse struct {
	ChatResponse
	Messages []*model.Message `json:"messages"`
}

// CreateChatRequest is the body of POST /chats. Title is optional.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// CreateMessageRequest is the body of POST /chats/{id}/messages.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// CreateMessageResponse acknowledges a message and its scheduled reply.
type CreateMessageResponse struct {
	Message *model.Message `json:"message"`
	TaskID  string         `json:"task_id"`
	Title   string         `json:"title"`
}

// DeleteChatResponse names the chat to show after a delete.
type DeleteChatResponse struct {
	NextChatID string `json:"next_chat_id,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string      `json:"status"`
	Version       string      `json:"version"`
	StorageStatus string      `json:"storage_status"`
	Provider      string      `json:"provider,omitempty"`
	ModelStatus   string      `json:"model_status"`
	Dispatch      tasks.Stats `json:"dispatch"`
}

// TaskResponse is the state of a scheduled reply.
type TaskResponse struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id"`
	Status         string     `json:"status"`
	Error          string     `json:"error,omitempty"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

func taskResponse(t *tasks.Task) TaskResponse {
	resp := TaskResponse{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		MessageID:      t.MessageID,
		Status:         t.Status.String(),
		Error:          t.Error,
		EnqueuedAt:     t.EnqueuedAt,
	}
	if !t.StartTime.IsZero() {
		started := t.StartTime
		resp.StartedAt = &started
	}
	if !t.EndTime.IsZero() {
		ended := t.EndTime
		resp.EndedAt = &ended
	}
	return resp
}

func chatResponse(conv *model.Conversation, title string) ChatResponse {
	return ChatResponse{ID: conv.ID, Title: title, CreatedAt: conv.CreatedAt, UpdatedAt: conv.UpdatedAt}
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := HealthResponse{
		Status:        "ok",
		Version:       Version,
		StorageStatus: "ok",
		ModelStatus:   "not_configured",
		Dispatch:      s.dispatcher.Stats(),
	}

	if err := s.store.Ping(ctx); err != nil {
		health.StorageStatus = "unavailable"
		health.Status = "degraded"
	}
	if s.model != nil {
		health.Provider = s.model.Name()
		if err := s.model.CheckRunning(ctx); err != nil {
			health.ModelStatus = "unavailable"
			health.Status = "degraded"
		} else {
			health.ModelStatus = "ok"
		}
	}

	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListConversations(r.Context(), UserID(r.Context()))
	if err != nil {
		s.internalError(w, "list chats", err)
		return
	}

	resp := make([]ChatResponse, 0, len(chats))
	for i := range chats {
		resp = append(resp, chatResponse(&chats[i].Conversation, chats[i].DisplayTitle))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	conv, err := s.store.CreateConversation(r.Context(), UserID(r.Context()), req.Title)
	if err != nil {
		s.internalError(w, "create chat", err)
		return
	}
	title, err := s.store.DisplayTitle(r.Context(), conv)
	if err != nil {
		s.internalError(w, "create chat", err)
		return
	}
	writeJSON(w, http.StatusCreated, chatResponse(conv, title))
}

func (s *Server) handleShowChat(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedChat(w, r)
	if !ok {
		return
	}

	messages, err := s.store.Messages(r.Context(), conv.ID)
	if err != nil {
		s.internalError(w, "show chat", err)
		return
	}
	title, err := s.store.DisplayTitle(r.Context(), conv)
	if err != nil {
		s.internalError(w, "show chat", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatDetailResponse{ChatResponse: chatResponse(conv, title), Messages: messages})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedChat(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteConversation(r.Context(), conv.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		s.internalError(w, "delete chat", err)
		return
	}

	var resp DeleteChatResponse
	if rest, err := s.store.ListConversations(r.Context(), conv.UserID); err == nil && len(rest) > 0 {
		resp.NextChatID = rest[0].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedChat(w, r)
	if !ok {
		return
	}

	var req CreateMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	if len([]rune(req.Content)) > MaxMessageLength {
		writeError(w, http.StatusRequestEntityTooLarge, "Message is too long")
		return
	}

	msg, err := s.store.CreateMessage(r.Context(), conv.ID, model.RoleUser, req.Content)
	if err != nil {
		s.internalError(w, "create message", err)
		return
	}

	task, err := s.dispatcher.Enqueue(r.Context(), conv.ID, msg.ID)
	if err != nil {
		// An unscheduled message would never be answered.
		if derr := s.store.DeleteMessage(context.WithoutCancel(r.Context()), msg.ID); derr != nil {
			log.Printf("MESSAGE_ROLLBACK_FAILED | conversation=%s message=%s error=%v", conv.ID, msg.ID, derr)
		}
		if errors.Is(err, tasks.ErrQueueFull) {
			log.Printf("ENQUEUE_REJECTED | conversation=%s message=%s error=%v", conv.ID, msg.ID, err)
			writeError(w, http.StatusServiceUnavailable, "Server is busy, try again shortly")
			return
		}
		s.internalError(w, "enqueue reply", err)
		return
	}

	if _, err := s.store.DeriveTitleFromFirstMessage(r.Context(), conv, msg); err != nil {
		log.Printf("TITLE_DERIVE_FAILED | conversation=%s error=%v", conv.ID, err)
	}

	title, err := s.store.DisplayTitle(r.Context(), conv)
	if err != nil {
		title = ""
	}
	writeJSON(w, http.StatusAccepted, CreateMessageResponse{Message: msg, TaskID: task.ID, Title: title})
}

func (s *Server) handleShowTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, taskResponse(task))
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	if !s.dispatcher.Cancel(task.ID) {
		writeError(w, http.StatusConflict, "Task has already finished")
		return
	}
	if current := s.dispatcher.Task(task.ID); current != nil {
		task = current
	}
	writeJSON(w, http.StatusAccepted, taskResponse(task))
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, http.StatusNotFound, "Usage tracking is disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.usage.Summary())
}

func (s *Server) handleExportChat(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedChat(w, r)
	if !ok {
		return
	}

	exp, err := export.ForFormat(r.URL.Query().Get("format"), nil, s.renderer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown export format")
		return
	}

	messages, err := s.store.Messages(r.Context(), conv.ID)
	if err != nil {
		s.internalError(w, "export chat", err)
		return
	}
	title, err := s.store.DisplayTitle(r.Context(), conv)
	if err != nil {
		s.internalError(w, "export chat", err)
		return
	}

	transcript := export.NewTranscript(conv, title, messages)
	data, err := exp.Export(transcript)
	if err != nil {
		s.internalError(w, "export chat", err)
		return
	}

	w.Header().Set("Content-Type", exp.MimeType())
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename(transcript, exp)}))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedChat(w, r)
	if !ok {
		return
	}
	if s.streamer == nil {
		writeError(w, http.StatusNotImplemented, "Streaming is not enabled")
		return
	}
	s.streamer.Serve(w, r, broadcast.ChatStream(conv.ID))
}

func (s *Server) handleSidebarStream(w http.ResponseWriter, r *http.Request) {
	if s.streamer == nil {
		writeError(w, http.StatusNotImplemented, "Streaming is not enabled")
		return
	}
	s.streamer.Serve(w, r, broadcast.SidebarStream(UserID(r.Context())))
}

// ownedChat loads the path's conversation for the current user, writing a
// 404 when it does not exist or belongs to someone else.
func (s *Server) ownedChat(w http.ResponseWriter, r *http.Request) (*model.Conversation, bool) {
	conv, err := s.store.GetConversationForUser(r.Context(), r.PathValue("id"), UserID(r.Context()))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not Found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, "load chat", err)
		return nil, false
	}
	return conv, true
}

// ownedTask loads the task named by the path and checks its conversation
// belongs to the caller. Unknown and foreign tasks are both 404.
func (s *Server) ownedTask(w http.ResponseWriter, r *http.Request) (*tasks.Task, bool) {
	task := s.dispatcher.Task(r.PathValue("id"))
	if task == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return nil, false
	}
	_, err := s.store.GetConversationForUser(r.Context(), task.ConversationID, UserID(r.Context()))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not Found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, "load task", err)
		return nil, false
	}
	return task, true
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens and serves until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	return serve(s.httpServer(), ln)
}

// Run serves until ctx is done, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go s.limiter.Run(ctx)

	srv := s.httpServer()
	errc := make(chan error, 1)
	go func() { errc <- serve(srv, ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func (s *Server) httpServer() *http.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server
}

func serve(srv *http.Server, ln net.Listener) error {
	log.Printf("SERVER_START | addr=%s version=%s", ln.Addr(), Version)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}

	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	log.Printf("REQUEST_FAILED | op=%q error=%v", op, err)
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

// decodeBody decodes a JSON body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
