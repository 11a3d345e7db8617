package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"
)

// Pinger checks a hard dependency such as the database.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	breakers BreakerView
	ping     Pinger
}

func NewHealthHandler(breakers BreakerView, ping Pinger) *HealthHandler {
	return &HealthHandler{breakers: breakers, ping: ping}
}

// HealthCheck is 503 only when the database is unreachable. An open breaker
// means commands degrade, so the instance still reports 200 with
// status "degraded".
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
	}
	status := "ok"
	var open []string
	if h.breakers != nil {
		for _, s := range h.breakers.Snapshots() {
			if s.State == gobreaker.StateOpen.String() {
				open = append(open, s.Dependency)
			}
		}
	}
	if len(open) > 0 {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "open_breakers": open})
}
