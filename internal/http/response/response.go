package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/logcompliance/internal/platform/apierr"
	"github.com/yungbote/logcompliance/internal/workflow"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the error envelope used by the read-only job routes.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// RespondAPIError takes status and code from an *apierr.Error, defaulting to 500.
func RespondAPIError(c *gin.Context, err error) {
	RespondError(c, apierr.Status(err), apierr.Code(err), err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondResult writes a controller result with the status it maps to.
func RespondResult(c *gin.Context, res workflow.Result) {
	RespondResultWithStatus(c, res.HTTPStatus(), res)
}

// RespondResultWithStatus writes res under an explicit status. Push-delivery callers use
// it to acknowledge results that must not be redelivered.
func RespondResultWithStatus(c *gin.Context, status int, res workflow.Result) {
	if res.Status != workflow.StatusSuccess {
		_ = c.Error(resultError{res})
	}
	c.JSON(status, res)
}

type resultError struct{ res workflow.Result }

func (e resultError) Error() string {
	return string(e.res.Status) + ": " + e.res.Message
}
