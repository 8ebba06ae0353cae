package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/logcompliance/internal/http/response"
	"github.com/yungbote/logcompliance/internal/platform/logger"
	"github.com/yungbote/logcompliance/internal/workflow"
)

const eventObjectFinalize = "OBJECT_FINALIZE"

// pushEnvelope is the body Pub/Sub posts to a push subscription. Cloud Storage
// notifications carry the event in the message attributes.
type pushEnvelope struct {
	Message struct {
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type NotificationFilter struct {
	// Bucket, when set, ignores events from any other bucket.
	Bucket string
	// Prefix, when set, ignores objects outside it.
	Prefix string
}

// NotificationHandler turns storage finalize events into start triggers.
type NotificationHandler struct {
	log    *logger.Logger
	ctrl   TriggerController
	filter NotificationFilter
}

func NewNotificationHandler(log *logger.Logger, ctrl TriggerController, filter NotificationFilter) *NotificationHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &NotificationHandler{log: log.With("handler", "NotificationHandler"), ctrl: ctrl, filter: filter}
}

// POST /api/notifications/storage
//
// Pub/Sub redelivers anything not acknowledged with 2xx. Client errors are acknowledged
// so a rejected upload is not retried forever; server errors are not.
func (h *NotificationHandler) Storage(c *gin.Context) {
	var env pushEnvelope
	if err := json.NewDecoder(c.Request.Body).Decode(&env); err != nil {
		h.log.Warn("Undecodable push message", "error", err)
		c.Status(http.StatusNoContent)
		return
	}
	attrs := env.Message.Attributes
	bucket := strings.TrimSpace(attrs["bucketId"])
	key := strings.TrimSpace(attrs["objectId"])
	if attrs["eventType"] != eventObjectFinalize || bucket == "" || key == "" || !h.accepts(bucket, key) {
		c.Status(http.StatusNoContent)
		return
	}

	// The push ack deadline must not abort the phase.
	res := h.ctrl.Handle(context.WithoutCancel(c.Request.Context()), workflow.StartTrigger(workflow.SourceLocation{Bucket: bucket, Key: key}, path.Base(key)))
	h.log.Info("Storage event handled",
		"message_id", env.Message.MessageID,
		"bucket", bucket,
		"object", key,
		"status", res.Status,
		"job_id", res.JobID,
	)
	status := http.StatusOK
	if res.Status == workflow.StatusServerError {
		status = res.HTTPStatus()
	}
	response.RespondResultWithStatus(c, status, res)
}

func (h *NotificationHandler) accepts(bucket, key string) bool {
	if h.filter.Bucket != "" && bucket != h.filter.Bucket {
		return false
	}
	if strings.HasSuffix(key, "/") {
		return false
	}
	return h.filter.Prefix == "" || strings.HasPrefix(key, h.filter.Prefix)
}
