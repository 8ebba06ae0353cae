package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/logcompliance/internal/http/response"
	"github.com/yungbote/logcompliance/internal/workflow"
)

const maxTriggerBytes = 64 << 10

// TriggerController runs one controller invocation.
type TriggerController interface {
	Handle(ctx context.Context, t workflow.Trigger) workflow.Result
}

type TriggerHandler struct {
	ctrl TriggerController
}

func NewTriggerHandler(ctrl TriggerController) *TriggerHandler {
	return &TriggerHandler{ctrl: ctrl}
}

// POST /api/triggers
func (h *TriggerHandler) Invoke(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTriggerBytes+1))
	if err != nil {
		response.RespondResult(c, workflow.RejectedResult(&workflow.MalformedTriggerError{Reason: "read body", Err: err}))
		return
	}
	if len(raw) > maxTriggerBytes {
		response.RespondResult(c, workflow.RejectedResult(&workflow.MalformedTriggerError{Reason: fmt.Sprintf("trigger exceeds %d bytes", maxTriggerBytes)}))
		return
	}
	t, err := workflow.ParseTrigger(raw)
	if err != nil {
		response.RespondResult(c, workflow.RejectedResult(err))
		return
	}
	// A disconnecting caller must not abort the phase.
	response.RespondResult(c, h.ctrl.Handle(context.WithoutCancel(c.Request.Context()), t))
}
