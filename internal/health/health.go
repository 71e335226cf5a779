package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisabled     = "disabled"
	StatusRunning      = "running"
	StatusStalled      = "stalled"
)

// Connection NATS 连接状态
type Connection interface {
	IsConnected() bool
}

// Pinger Redis / PostgreSQL 连通性
type Pinger interface {
	Ping(ctx context.Context) error
}

// Liveness 引擎事件循环存活检查
type Liveness interface {
	Alive(staleAfter time.Duration) bool
}

// Status 健康状态
type Status struct {
	NATS     string `json:"nats"`
	Redis    string `json:"redis"`
	Database string `json:"database"`
	Engine   string `json:"engine"`
}

// Healthy 所有启用的依赖均可用
func (s *Status) Healthy() bool {
	for _, v := range []string{s.NATS, s.Redis, s.Database} {
		if v != StatusConnected && v != StatusDisabled {
			return false
		}
	}
	return s.Engine == StatusRunning
}

// Checker 健康检查器，为空的依赖视为未启用
type Checker struct {
	nc         Connection
	redis      Pinger
	db         Pinger
	engine     Liveness
	staleAfter time.Duration
}

// NewChecker 创建健康检查器
func NewChecker(nc Connection, redis Pinger, db Pinger, engine Liveness) *Checker {
	return &Checker{
		nc:         nc,
		redis:      redis,
		db:         db,
		engine:     engine,
		staleAfter: 30 * time.Second,
	}
}

// WithStaleAfter 事件循环超过该时间无心跳视为停滞
func (h *Checker) WithStaleAfter(d time.Duration) *Checker {
	h.staleAfter = d
	return h
}

func ping(ctx context.Context, p Pinger) string {
	if p == nil {
		return StatusDisabled
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		NATS:     StatusDisabled,
		Redis:    ping(ctx, h.redis),
		Database: ping(ctx, h.db),
		Engine:   StatusStalled,
	}

	if h.nc != nil {
		if h.nc.IsConnected() {
			status.NATS = StatusConnected
		} else {
			status.NATS = StatusDisconnected
		}
	}
	if h.engine != nil && h.engine.Alive(h.staleAfter) {
		status.Engine = StatusRunning
	}
	return status
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Healthy()
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// ReadyHandler 就绪检查端点
func (h *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.IsHealthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready"))
		}
	}
}
