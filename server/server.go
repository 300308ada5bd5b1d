package chunkserv

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bosley/chunkscribe/scribe"
)

const (
	defaultAddr           = ":8444"
	defaultMaxUploadBytes = 64 << 20

	startedMessage = "Processing started"
)

// Processor runs one transcription request and publishes its progress.
type Processor interface {
	Process(ctx context.Context, audio []byte, pub scribe.Publisher) error
}

// Configuration for the websocket server
type Config struct {
	// HTTP server address
	Addr string

	// Certificate files for TLS, plain HTTP when empty
	CertFile string
	KeyFile  string

	// Shared secret callers must present
	Token string

	// Largest inbound websocket message
	MaxUploadBytes int64
}

type Server struct {
	config    Config
	processor Processor
	clients   *ClientList
	gatherer  prometheus.Gatherer
	upgrader  websocket.Upgrader
	server    *http.Server

	// In-flight requests across all connections, cancelled on shutdown.
	// closing is set under mu before requests is waited on.
	mu       sync.Mutex
	closing  bool
	requests sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(cfg Config, processor Processor, gatherer prometheus.Gatherer) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:       ctx,
		cancel:    cancel,
		config:    cfg,
		processor: processor,
		clients:   NewClientList(),
		gatherer:  gatherer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Callers authenticate with the token instead
			},
		},
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Clients() *ClientList {
	return s.clients
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/ws", s.handleWebSocket)
	router.HandleFunc("/api/clients", s.handleListClients).Methods("GET")
	router.HandleFunc("/api/clients/{id}", s.handleGetClient).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	return router
}

// Start serves until ctx is done, then shuts down, cancels in-flight
// requests and waits for them to finish their cleanup.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.CertFile != "" && s.config.KeyFile != "" {
			slog.Info("Starting TLS server", "address", s.config.Addr)
			err = s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			slog.Warn("Starting server without TLS. This should not be used in production!", "address", s.config.Addr)
			err = s.server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Debug("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.drain()
	if err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}

// beginRequest registers an in-flight request. It reports false once the
// server is draining.
func (s *Server) beginRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.requests.Add(1)
	return true
}

// drain refuses new requests, cancels the running ones and waits for them.
// Hijacked websocket connections outlive http.Server.Shutdown, so this is
// what ends them.
func (s *Server) drain() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()
	s.requests.Wait()
}

func (s *Server) authorized(r *http.Request) bool {
	if s.config.Token == "" {
		return true
	}
	presented := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		presented = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.config.Token)) == 1
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	clients := s.clients.List()
	slog.Debug("Sending client list", "numClients", len(clients))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(clients); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}

	client, ok := s.clients.Get(id)
	if !ok {
		http.Error(w, "Client not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(client.Info()); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		slog.Warn("Invalid token received", "remoteAddr", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:          uuid.New(),
		Addr:        r.RemoteAddr,
		ConnectedAt: time.Now(),
	}
	s.clients.Add(client)

	ctx, cancel := context.WithCancel(s.ctx)
	wsConn := &wsConnection{
		conn:   conn,
		client: client,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
		server: s,
	}

	slog.Debug("New client connected", "clientID", client.ID, "remoteAddr", client.Addr)

	go wsConn.writePump()
	go wsConn.readPump()
}
