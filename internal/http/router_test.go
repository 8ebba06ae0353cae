package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/logcompliance/internal/http/handlers"
	"github.com/yungbote/logcompliance/internal/workflow"
)

type okController struct{}

func (okController) Handle(_ context.Context, t workflow.Trigger) workflow.Result {
	return workflow.Result{Status: workflow.StatusSuccess, JobID: t.JobID, State: workflow.StateDone}
}

func TestRouterRegistersConfiguredRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterConfig{
		TriggerHandler: httpH.NewTriggerHandler(okController{}),
		HealthHandler:  httpH.NewHealthHandler(nil),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: want=200 ok got=%d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: want=200 got=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/triggers", strings.NewReader(`{"job_id":"j1","phase":3}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/j1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unconfigured job route: want=404 got=%d", rec.Code)
	}
}
