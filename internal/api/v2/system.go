package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nongbuhae/cropdoc/internal/logger"
)

const healthCheckTimeout = 3 * time.Second

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	BuildDate     string            `json:"build_date,omitempty"`
	Timestamp     string            `json:"timestamp"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
	System        *SystemStats      `json:"system,omitempty"`
}

// SystemStats is the host resource snapshot included in health replies.
type SystemStats struct {
	MemoryTotal       string  `json:"memory_total"`
	MemoryUsed        string  `json:"memory_used"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	HostUptimeSeconds uint64  `json:"host_uptime_seconds,omitempty"`
	Goroutines        int     `json:"goroutines"`
	ProcessHeap       string  `json:"process_heap"`
}

// HealthCheck handles GET /health. Any failing dependency check turns the
// status into degraded and the code into 503.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	resp := HealthResponse{
		Status:        StatusHealthy,
		Version:       c.Settings.Version,
		BuildDate:     c.Settings.BuildDate,
		Timestamp:     time.Now().In(c.location).Format(time.RFC3339),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		System:        c.systemStats(),
	}

	if len(c.healthChecks) > 0 {
		checkCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthCheckTimeout)
		defer cancel()

		names := make([]string, 0, len(c.healthChecks))
		for name := range c.healthChecks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Dependencies = make(map[string]string, len(names))
		for _, name := range names {
			if err := c.healthChecks[name](checkCtx); err != nil {
				resp.Status = StatusDegraded
				resp.Dependencies[name] = "error: " + entryErrorMessage(err)
				c.log.Warn("health check failed",
					logger.String("dependency", name),
					logger.Error(err))
				continue
			}
			resp.Dependencies[name] = "ok"
		}
	}

	code := http.StatusOK
	if resp.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, resp)
}

// systemStats collects host memory figures. Host lookups that fail are
// left out of the reply.
func (c *Controller) systemStats() *SystemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats := &SystemStats{
		Goroutines:  runtime.NumGoroutine(),
		ProcessHeap: bytes.Format(int64(ms.HeapAlloc)),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryTotal = bytes.Format(int64(vm.Total))
		stats.MemoryUsed = bytes.Format(int64(vm.Used))
		stats.MemoryUsedPercent = vm.UsedPercent
	} else {
		c.log.Debug("cannot read host memory", logger.Error(err))
	}
	if up, err := host.Uptime(); err == nil {
		stats.HostUptimeSeconds = up
	}
	return stats
}
