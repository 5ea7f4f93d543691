package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthStat reports a value shown alongside the health checks
type HealthStat func() interface{}

// AddHealthCheck registers a dependency probe for GET /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.checks[name] = check
}

// AddHealthStat registers a value reported by GET /health
func (s *Server) AddHealthStat(name string, stat HealthStat) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.stats[name] = stat
}

func (s *Server) handleHealth(c *gin.Context) {
	s.healthMu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	stats := make(map[string]interface{}, len(s.stats))
	for name, stat := range s.stats {
		stats[name] = stat()
	}
	s.healthMu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			s.logger.WithError(err).Warn("Health check failed", "component", name)
			components[name] = "unhealthy: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "healthy"
	}

	body := gin.H{
		"status":     status,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"ws_clients": s.hub.GetClientCount(),
	}
	if len(components) > 0 {
		body["components"] = components
	}
	if len(stats) > 0 {
		body["stats"] = stats
	}
	c.JSON(code, body)
}
