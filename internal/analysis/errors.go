package analysis

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// TransportError reports that the analysis service could not be reached or did not
// answer with a usable HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "analysis transport error"
	}
	return fmt.Sprintf("analysis %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MalformedResponseError reports a response that arrived but lacks the expected field.
type MalformedResponseError struct {
	Op     string
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	if e == nil {
		return "analysis malformed response"
	}
	return fmt.Sprintf("analysis %s: malformed response: %s", e.Op, e.Reason)
}

type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "http error"
	}
	return fmt.Sprintf("http error: status=%d message=%s", e.StatusCode, msg)
}

func parseHTTPError(status int, raw []byte) error {
	body := strings.TrimSpace(string(raw))

	var env struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &env); err == nil {
		switch {
		case strings.TrimSpace(env.Error.Message) != "":
			msg = env.Error.Message
		case strings.TrimSpace(env.Detail) != "":
			msg = env.Detail
		default:
			msg = env.Message
		}
	}
	return &HTTPError{
		StatusCode: status,
		Message:    strings.TrimSpace(msg),
		Body:       body,
	}
}
