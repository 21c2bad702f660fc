package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/internal/tracing"
	"github.com/harun/roundtable/pkg/agent"
	"github.com/harun/roundtable/pkg/engine"
	"github.com/harun/roundtable/pkg/files"
	"github.com/harun/roundtable/pkg/provider"
	"github.com/harun/roundtable/pkg/store"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// SessionRunner serves one discussion over a connection
type SessionRunner interface {
	Run(ctx context.Context, conn engine.Conn) error
}

// UsageReporter aggregates persisted token usage
type UsageReporter interface {
	UsageSummary(ctx context.Context, from, to time.Time) (*store.UsageSummary, error)
}

// Server is the HTTP and WebSocket front door of the discussion engine
type Server struct {
	host           string
	port           int
	server         *http.Server
	listener       net.Listener
	upgrader       websocket.Upgrader
	clients        *ClientRegistry
	sessions       SessionRunner
	personas       *agent.Registry
	providers      []provider.CatalogEntry
	keyConfigured  func(providerKey string) bool
	extractor      *files.Extractor
	usage          UsageReporter
	allowedOrigins []string
	framesPerMin   int
	maxUploadBytes int64
	logger         zerolog.Logger

	baseCtx        context.Context
	cancelSessions context.CancelFunc
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlight       sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host     string
	Port     int
	Sessions SessionRunner
	Personas *agent.Registry

	// Providers is the catalog served by /api/providers. KeyConfigured
	// reports whether the server holds a key for a provider.
	Providers     []provider.CatalogEntry
	KeyConfigured func(providerKey string) bool

	Files *files.Extractor

	// Usage is optional; without it /api/usage answers 503
	Usage UsageReporter

	// AllowedOrigins lists browser origins accepted for WebSocket upgrades
	// and CORS. Empty or "*" accepts any origin.
	AllowedOrigins []string
	FramesPerMin   int
	MaxUploadMB    int

	Logger zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	observability.EnsureRegistered()

	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session runner is required")
	}
	if cfg.Personas == nil {
		return nil, fmt.Errorf("persona registry is required")
	}
	if cfg.Files == nil {
		cfg.Files = files.New(files.Config{})
	}
	if cfg.KeyConfigured == nil {
		cfg.KeyConfigured = func(string) bool { return false }
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		clients:        NewClientRegistry(),
		sessions:       cfg.Sessions,
		personas:       cfg.Personas,
		providers:      cfg.Providers,
		keyConfigured:  cfg.KeyConfigured,
		extractor:      cfg.Files,
		usage:          cfg.Usage,
		allowedOrigins: cfg.AllowedOrigins,
		framesPerMin:   cfg.FramesPerMin,
		maxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		logger:         cfg.Logger.With().Str("component", "gateway").Logger(),
		baseCtx:        baseCtx,
		cancelSessions: cancel,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}

	return s, nil
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/discuss", s.handleWebSocket)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"clients": s.clients.Count(),
		})
	})
	return s.cors(mux)
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the gateway server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	// Sessions stop at their next suspension point; closing the sockets
	// unblocks their readers.
	s.cancelSessions()
	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All sessions finished")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// GetConnectedClients returns information about all connected clients
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.GetConnectedClients()
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin)
}

// cors answers preflight requests and tags REST responses for allowed origins
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades the request and hands the socket to the engine
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.inFlight.Add(1)
	s.shutdownMu.RUnlock()
	defer s.inFlight.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	now := time.Now()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
		RateLimiter:  NewFrameRateLimiter(s.framesPerMin),
	}
	s.clients.Add(client)

	ctx := tracing.WithTraceID(s.baseCtx, tracing.NewTraceID())
	logger := tracing.LoggerFromContext(ctx, s.logger).With().Str("clientId", clientID).Logger()
	logger.Info().Str("ip", r.RemoteAddr).Msg("Client connected")

	defer func() {
		conn.Close()
		s.clients.Remove(clientID)
		logger.Info().Msg("Client disconnected")
	}()

	if err := s.sessions.Run(ctx, newWSConn(client, s.clients, logger)); err != nil {
		logger.Warn().Err(err).Msg("Session ended with error")
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	personas := s.personas.Participants()
	out := make([]AgentSummary, 0, len(personas))
	for _, p := range personas {
		out = append(out, AgentSummary{
			Key:       p.Key,
			Name:      p.Name,
			Specialty: p.Specialty,
			Color:     p.Color,
			Avatar:    p.Avatar,
			Role:      p.Role,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	out := make([]ProviderSummary, 0, len(s.providers))
	for _, entry := range s.providers {
		out = append(out, ProviderSummary{
			CatalogEntry: entry,
			Configured:   s.keyConfigured(entry.Key),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUpload extracts text from one multipart file field named "file"
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			observability.RecordUploadAudit(r.Context(), r.RemoteAddr, "", "rejected", 0)
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		observability.RecordUploadAudit(r.Context(), r.RemoteAddr, header.Filename, "failed", 0)
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	text := s.extractor.Extract(header.Filename, data)
	observability.RecordUploadAudit(r.Context(), r.RemoteAddr, header.Filename, "success", len(data))
	s.logger.Info().
		Str("filename", header.Filename).
		Int("bytes", len(data)).
		Bool("supported", files.Supported(header.Filename)).
		Msg("File uploaded")

	writeJSON(w, http.StatusOK, UploadResponse{
		Filename: header.Filename,
		Text:     text,
		Bytes:    len(data),
	})
}

// handleUsage reports token usage between the optional from and to query
// parameters, given as dates or RFC 3339 timestamps
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, http.StatusServiceUnavailable, "usage tracking is not configured")
		return
	}

	query := r.URL.Query()
	from, err := parseTime(query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	to, err := parseTime(query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}

	summary, err := s.usage.UsageSummary(r.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to build usage summary")
		writeError(w, http.StatusInternalServerError, "failed to build usage summary")
		return
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		UsageSummary: summary,
		From:         query.Get("from"),
		To:           query.Get("to"),
	})
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
