package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusDisabled  Status = "disabled"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines    int    `json:"goroutines"`
	MemoryAllocMB uint64 `json:"memory_alloc_mb"`
	MemorySysMB   uint64 `json:"memory_sys_mb"`
	NumGC         uint32 `json:"num_gc"`
}

type SessionStats struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Thinking bool   `json:"thinking"`
	Viewers  int    `json:"preview_viewers"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Session       SessionStats               `json:"session"`
	Runtime       RuntimeStats               `json:"runtime"`
	Components    map[string]ComponentStatus `json:"components"`
}

// SessionProbe reports on the running assistant session.
type SessionProbe interface {
	Stats() SessionStats
}

// ConnChecker is implemented by gRPC-backed clients.
type ConnChecker interface {
	IsConnected() bool
}

// Deps lists what the readiness check probes. Nil entries are reported as
// disabled and do not affect the overall status.
type Deps struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Qdrant    *qdrant.Client
	Inference ConnChecker
	Session   SessionProbe
	Version   string
}

type Handler struct {
	deps      Deps
	startTime time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

func (h *Handler) Liveness(c echo.Context) error {
	body := map[string]string{"status": "ok"}
	if h.deps.Session != nil {
		body["session_state"] = h.deps.Session.Stats().State
	}
	return c.JSON(http.StatusOK, body)
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := []struct {
		name  string
		check func(context.Context) ComponentStatus
	}{
		{"database", h.checkDatabase},
		{"redis", h.checkRedis},
		{"qdrant", h.checkQdrant},
		{"inference", h.checkInference},
	}

	components := make(map[string]ComponentStatus, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(checks))
	for _, check := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(check.name, check.check)
	}
	wg.Wait()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        computeOverallStatus(components),
		Timestamp:     time.Now().UTC(),
		Version:       h.deps.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: memStats.Alloc / 1024 / 1024,
			MemorySysMB:   memStats.Sys / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Components: components,
	}
	if h.deps.Session != nil {
		resp.Session = h.deps.Session.Stats()
	}

	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, resp)
}

func timed(start time.Time, status Status, errMsg string) ComponentStatus {
	return ComponentStatus{Status: status, LatencyMs: time.Since(start).Milliseconds(), Error: errMsg}
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.deps.DB == nil {
		return timed(start, StatusDisabled, "")
	}
	sqlDB, err := h.deps.DB.DB()
	if err != nil {
		return timed(start, StatusUnhealthy, "failed to get underlying db")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return timed(start, StatusUnhealthy, "ping failed")
	}
	return timed(start, StatusHealthy, "")
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.deps.Redis == nil {
		return timed(start, StatusDisabled, "")
	}
	if err := h.deps.Redis.Ping(ctx).Err(); err != nil {
		return timed(start, StatusUnhealthy, "ping failed")
	}
	return timed(start, StatusHealthy, "")
}

func (h *Handler) checkQdrant(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.deps.Qdrant == nil {
		return timed(start, StatusDisabled, "")
	}
	if _, err := h.deps.Qdrant.ListCollections(ctx); err != nil {
		return timed(start, StatusUnhealthy, "list collections failed")
	}
	return timed(start, StatusHealthy, "")
}

func (h *Handler) checkInference(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.deps.Inference == nil {
		return timed(start, StatusDisabled, "")
	}
	if !h.deps.Inference.IsConnected() {
		return timed(start, StatusUnhealthy, "not connected")
	}
	return timed(start, StatusHealthy, "")
}

// computeOverallStatus is unhealthy only when the inference sidecar is down;
// other failing components degrade the assistant without stopping it.
func computeOverallStatus(components map[string]ComponentStatus) Status {
	if s, ok := components["inference"]; ok && s.Status == StatusUnhealthy {
		return StatusUnhealthy
	}
	for _, s := range components {
		if s.Status == StatusUnhealthy || s.Status == StatusDegraded {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
