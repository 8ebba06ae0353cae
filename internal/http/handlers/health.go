package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 3 * time.Second

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]ReadinessCheck
}

// NewHealthHandler takes named checks run by Ready. Nil checks are dropped.
func NewHealthHandler(checks map[string]ReadinessCheck) *HealthHandler {
	h := &HealthHandler{checks: map[string]ReadinessCheck{}}
	for name, check := range checks {
		if check != nil {
			h.checks[name] = check
		}
	}
	return h
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type readinessView struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// GET /readyz
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var g errgroup.Group
	for i, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			if err := check(ctx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	view := readinessView{Ready: true, Checks: make(map[string]string, len(names))}
	for i, name := range names {
		view.Checks[name] = results[i]
		if results[i] != "ok" {
			view.Ready = false
		}
	}
	status := http.StatusOK
	if !view.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, view)
}
