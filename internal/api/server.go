package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/histocam/internal/capture"
	"github.com/bryanchriswhite/histocam/internal/config"
	"github.com/bryanchriswhite/histocam/internal/logger"
	"github.com/bryanchriswhite/histocam/internal/output"
	"github.com/bryanchriswhite/histocam/internal/pipeline"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const version = "0.1.0"

// Capture is the control surface of the capture scheduler
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
	SetGrayscale(enabled bool)
	Status() pipeline.Status
	Subscribe() chan pipeline.TickEvent
	Unsubscribe(ch chan pipeline.TickEvent)
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	capture   Capture
	display   *output.Display
	configMgr *config.Manager
	upgrader  websocket.Upgrader

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a new API server. configMgr may be nil, in which case
// the config endpoint and persisted toggles are disabled.
func NewServer(capture Capture, display *output.Display, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		capture:   capture,
		display:   display,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the control page may be opened from any host name
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Capture control
	api.HandleFunc("/capture/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/capture/start", s.handleStart).Methods("POST")
	api.HandleFunc("/capture/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/capture/grayscale", s.handleGetGrayscale).Methods("GET")
	api.HandleFunc("/capture/grayscale", s.handleSetGrayscale).Methods("PUT")

	// Per-tick histogram feed
	api.HandleFunc("/histogram/stream", s.handleHistogramStream)

	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Viewports
	for _, slot := range output.Slots {
		out, err := s.display.Output(slot)
		if err != nil {
			continue
		}
		s.router.HandleFunc("/stream/"+string(slot), out.Handler()).Methods("GET")
	}
	s.router.HandleFunc("/snapshot/{slot}", s.handleSnapshot).Methods("GET")

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves HTTP on port until Shutdown is called
func (s *Server) Start(port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	logger.WithComponent("api").Info().Int("port", port).Msgf("Starting server on http://localhost:%d", port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// HTTP Handlers

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.capture.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.capture.Start(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrDeviceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, s.capture.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.capture.Stop(); err != nil {
		// the session is stopped regardless; report the close failure
		logger.WithComponent("api").Warn().Err(err).Msg("Stop reported an error")
	}
	writeJSON(w, s.capture.Status())
}

type grayscaleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleGetGrayscale(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"enabled": s.capture.Status().Grayscale})
}

func (s *Server) handleSetGrayscale(w http.ResponseWriter, r *http.Request) {
	var req grayscaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Enabled == nil {
		http.Error(w, `missing "enabled"`, http.StatusBadRequest)
		return
	}

	s.capture.SetGrayscale(*req.Enabled)

	if s.configMgr != nil {
		if err := s.configMgr.SetGrayscale(*req.Enabled); err != nil {
			logger.WithComponent("api").Warn().Err(err).Msg("Failed to persist grayscale setting")
		}
	}

	writeJSON(w, map[string]bool{"enabled": *req.Enabled})
}

func (s *Server) handleHistogramStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.capture.Subscribe()
	defer s.capture.Unsubscribe(updates)

	// A closed connection ends the stream even when no ticks arrive
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.capture.Unsubscribe(updates)
				return
			}
		}
	}()

	// Send initial status
	if err := conn.WriteJSON(map[string]interface{}{"status": s.capture.Status()}); err != nil {
		log.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	for ev := range updates {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"capture": s.capture.Status(),
		"outputs": s.display.Stats(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "no configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, s.configMgr.Get())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	out, err := s.display.Output(pipeline.Slot(mux.Vars(r)["slot"]))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	data := out.CurrentJPEG()
	if data == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}
