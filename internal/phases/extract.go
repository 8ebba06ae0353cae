package phases

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in response")

// extractJSONObject trims markdown fences and surrounding prose down to the outermost
// {...} span and checks that it parses.
func extractJSONObject(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		body := s[i+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		if strings.Contains(body, "{") {
			s = body
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, errNoJSONObject
	}
	out := []byte(s[start : end+1])
	if !json.Valid(out) {
		return nil, errors.New("response JSON is not well formed")
	}
	return out, nil
}
