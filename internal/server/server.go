// Package server exposes the admin/status HTTP surface (spec.md §6): an
// on-demand scan trigger, health and status endpoints, Prometheus metrics,
// and the websocket upgrade endpoint. Routing follows the teacher's
// api-gateway/cmd/api-gateway/main.go chi setup.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fortuna/edge-engine/internal/health"
	"github.com/fortuna/edge-engine/internal/ledger"
	"github.com/fortuna/edge-engine/internal/registry"
	"github.com/fortuna/edge-engine/internal/wsbroadcast"
)

// Server wires the engine's collaborators into an HTTP router.
type Server struct {
	router   chi.Router
	log      zerolog.Logger
	registry *registry.Registry
	ledger   *ledger.Ledger
	health   *health.Reporter
	hub      *wsbroadcast.Hub
	upgrader websocket.Upgrader

	triggerScan func()
}

// New builds the router and registers every route. triggerScan is invoked
// asynchronously, in a goroutine the POST /scan handler starts, so the
// request returns 202 without waiting for the scan.
// reporter is shared with the scan-scheduling loop so /status reflects the
// most recently completed scan, per spec.md §7 / SPEC_FULL.md supplement #1.
func New(log zerolog.Logger, reg *registry.Registry, led *ledger.Ledger, hub *wsbroadcast.Hub, reporter *health.Reporter, triggerScan func()) *Server {
	s := &Server{
		log:         log.With().Str("component", "server").Logger(),
		registry:    reg,
		ledger:      led,
		health:      reporter,
		hub:         hub,
		triggerScan: triggerScan,
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/scan", s.handleTriggerScan)
	r.Get("/calibration", s.handleCalibration)
	r.Get("/ws", s.handleWebSocket)

	s.router = r
	return s
}

// Handler returns the assembled chi router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.health.Sample()
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds":          snapshot.UptimeSeconds,
		"cpu_percent":             snapshot.CPUPercent,
		"mem_percent":             snapshot.MemPercent,
		"registry":                s.registry.Stats(),
		"ws_clients":              s.hub.Stats(),
		"last_scan_at":            snapshot.LastScanAt,
		"last_scan_state":         snapshot.LastScanState,
		"last_scan_duration_secs": snapshot.LastScanDuration.Seconds(),
		"last_scan_markets":       snapshot.LastScanMarketCount,
		"last_scan_detected":      snapshot.LastScanDetected,
		"last_scan_gated":         snapshot.LastScanGated,
		"last_scan_emitted":       snapshot.LastScanEmitted,
		"recent_errors":           snapshot.RecentErrors,
	})
}

func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	go s.triggerScan()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scan triggered"})
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	report := s.ledger.CalculateCalibration()
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsbroadcast.Client{
		ID:   r.RemoteAddr,
		Conn: conn,
		Send: make(chan wsbroadcast.Message, 64),
	}
	s.hub.Register(client)

	go s.writePump(client)
	go s.readPump(client)
}

// writePump drains client.Send to the websocket connection until the
// channel is closed (by the hub, on unregister).
func (s *Server) writePump(c *wsbroadcast.Client) {
	defer c.Conn.Close()
	for msg := range c.Send {
		if err := c.Conn.WriteJSON(msg); err != nil {
			s.log.Debug().Err(err).Str("client", c.ID).Msg("websocket write failed")
			return
		}
	}
}

// readPump discards client input but detects disconnects, unregistering
// the client from the hub when the connection closes.
func (s *Server) readPump(c *wsbroadcast.Client) {
	defer s.hub.Unregister(c)
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
