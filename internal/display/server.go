package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wisefido-hrv/internal/models"
	"wisefido-hrv/internal/repository"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stats /metrics 输出的运行指标
type Stats struct {
	State          string `json:"state"`
	QueueDepth     int    `json:"queue_depth"`
	QueueDropped   uint64 `json:"queue_dropped"`
	SampleTicks    uint64 `json:"sample_ticks"`
	ReadErrors     uint64 `json:"read_errors"`
	Sessions       uint64 `json:"sessions"`
	ValidPPI       int    `json:"valid_ppi"`
	DisplayClient  int    `json:"display_clients"`
	DisplayDropped uint64 `json:"display_dropped"`
}

// StatsFunc 采集运行指标
type StatsFunc func() Stats

// SessionStore 已完成会话查询，由 repository.SessionRepository 实现
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*models.SessionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*models.SessionRecord, error)
}

// Server 显示推送、运行指标与会话查询 HTTP 服务
type Server struct {
	hub      *Hub
	stats    StatsFunc
	sessions SessionStore
	logger   *zap.Logger
	metrics  http.Handler
	srv      *http.Server
}

// NewServer 创建服务，addr 为监听地址；sessions 为 nil 时不提供 /sessions
func NewServer(addr string, hub *Hub, stats StatsFunc, sessions SessionStore, logger *zap.Logger) *Server {
	s := &Server{hub: hub, stats: stats, sessions: sessions, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newStatsCollector(s.snapshot),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(logger),
		ErrorHandling: promhttp.ContinueOnError,
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler 路由：/ws、/healthz、/metrics、/sessions
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", s.handleMetrics)
	if s.sessions != nil {
		mux.HandleFunc("GET /sessions", s.handleListSessions)
		mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	}
	return mux
}

func (s *Server) snapshot() Stats {
	var st Stats
	if s.stats != nil {
		st = s.stats()
	}
	st.DisplayClient = s.hub.Clients()
	st.DisplayDropped = s.hub.Dropped()
	return st
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, s.snapshot())
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	recs, err := s.sessions.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list sessions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
		return
	}
	if recs == nil {
		recs = []*models.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		s.logger.Error("Failed to get session", zap.String("session_id", r.PathValue("id")), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get session"})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := s.hub.join(conn)
	go s.hub.writePump(c)
	defer func() {
		s.hub.remove(c)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Start 开始监听（阻塞直到 Shutdown）
func (s *Server) Start() error {
	s.logger.Info("Display server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("display server: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
