package server

import (
	"chat-relay/infrastructure/websocket"
	"chat-relay/observability"
	"chat-relay/runtime"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	gorillaws "github.com/gorilla/websocket"
)

type ConnectionCounter interface {
	Len() int
}

type RoomLister interface {
	Stats() []runtime.RoomStats
}

type StatsResponse struct {
	Connections int                 `json:"connections"`
	Rooms       []runtime.RoomStats `json:"rooms"`
}

type Routes struct {
	log         *slog.Logger
	events      websocket.Events
	connections ConnectionCounter
	rooms       RoomLister
	metrics     *observability.Metrics
	connConfig  websocket.Config
	upgrader    gorillaws.Upgrader
}

func NewRoutes(log *slog.Logger, events websocket.Events, connections ConnectionCounter,
	rooms RoomLister, metrics *observability.Metrics, connConfig websocket.Config) *Routes {
	return &Routes{
		log:         log,
		events:      events,
		connections: connections,
		rooms:       rooms,
		metrics:     metrics,
		connConfig:  connConfig,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers from any origin may chat; there is no authentication to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler builds the router wrapped with panic recovery and access logging.
func (rt *Routes) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", rt.handleHello).Methods(http.MethodGet)
	r.HandleFunc("/ws/chat", rt.handleChat).Methods(http.MethodGet)
	r.HandleFunc("/healthz", rt.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", rt.handleStats).Methods(http.MethodGet)
	r.Handle("/metrics", rt.metrics.Handler()).Methods(http.MethodGet)

	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(logWriter{logger: rt.log}),
		handlers.PrintRecoveryStack(false),
	)(r)
	return handlers.CustomLoggingHandler(io.Discard, recovered, rt.accessLog)
}

func (rt *Routes) accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	rt.log.Debug("HTTP request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"size", p.Size,
		"remote", p.Request.RemoteAddr)
}

func (rt *Routes) handleHello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "hi")
}

// handleChat upgrades the request and serves the connection until it closes.
func (rt *Routes) handleChat(w http.ResponseWriter, r *http.Request) {
	ws, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		rt.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := websocket.NewConn(ws, rt.log, rt.connConfig)
	conn.Serve(r.Context(), rt.events)
}

func (rt *Routes) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (rt *Routes) handleStats(w http.ResponseWriter, _ *http.Request) {
	rooms := rt.rooms.Stats()
	if rooms == nil {
		rooms = []runtime.RoomStats{}
	}
	writeJSON(w, StatsResponse{Connections: rt.connections.Len(), Rooms: rooms})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
