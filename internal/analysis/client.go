package analysis

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// Options is the explicit configuration for a Client. Nothing is read from globals.
type Options struct {
	Endpoint   string
	Credential string
	Org        string
	Directory  string

	Timeout    time.Duration
	MaxRetries int

	InsecureSkipVerify bool

	HTTPClient *http.Client
}

type Client struct {
	endpoint   string
	credential string
	org        string
	directory  string

	timeout    time.Duration
	maxRetries int

	httpClient *http.Client
}

func New(opts Options) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("analysis endpoint required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("analysis endpoint: %w", err)
	}
	if strings.TrimSpace(opts.Org) == "" {
		return nil, errors.New("analysis org required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
		if opts.InsecureSkipVerify {
			tr := http.DefaultTransport.(*http.Transport).Clone()
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
			hc.Transport = tr
		}
	}

	return &Client{
		endpoint:   endpoint,
		credential: strings.TrimSpace(opts.Credential),
		org:        strings.TrimSpace(opts.Org),
		directory:  strings.TrimSpace(opts.Directory),
		timeout:    timeout,
		maxRetries: maxRetries,
		httpClient: hc,
	}, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

// Submit uploads a document for indexing.
func (c *Client) Submit(ctx context.Context, document []byte, documentName string) (SubmissionResult, error) {
	name := path.Base(strings.TrimSpace(documentName))
	if name == "" || name == "." || name == "/" {
		return SubmissionResult{}, errors.New("document name required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, kv := range [][2]string{
		{"org", c.org},
		{"directory", c.directory},
		{"contextMode", contextModeMultiDocs},
	} {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return SubmissionResult{}, err
		}
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return SubmissionResult{}, err
	}
	if _, err := fw.Write(document); err != nil {
		return SubmissionResult{}, err
	}
	if err := mw.Close(); err != nil {
		return SubmissionResult{}, err
	}

	raw, err := c.do(ctx, "/upload", mw.FormDataContentType(), body.Bytes(), 0)
	if err != nil {
		return SubmissionResult{}, &TransportError{Op: "submit", Err: err}
	}

	var resp uploadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SubmissionResult{}, &TransportError{Op: "submit", Err: fmt.Errorf("decode response: %w", err)}
	}
	code := statusCodeValue(resp.StatusCode)
	return SubmissionResult{
		Accepted:   code == http.StatusOK,
		StatusCode: code,
		Raw:        json.RawMessage(raw),
	}, nil
}

// AwaitReady polls the document status up to maxAttempts times. It returns true as soon
// as the service reports the document processed and false once attempts are exhausted.
// A failed poll counts as not ready; only context cancellation is returned as an error.
func (c *Client) AwaitReady(ctx context.Context, documentName string, maxAttempts int, pollInterval time.Duration) (bool, error) {
	form := url.Values{}
	form.Set("org", c.org)
	form.Set("directory", c.directory)
	form.Set("doc_name", path.Base(strings.TrimSpace(documentName)))
	payload := []byte(form.Encode())

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		raw, err := c.do(ctx, "/get_doc_status", "application/x-www-form-urlencoded", payload, c.maxRetries)
		if err == nil {
			var resp statusResponse
			if json.Unmarshal(raw, &resp) == nil && strings.EqualFold(strings.TrimSpace(resp.Status), statusProcessed) {
				return true, nil
			}
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return false, nil
}

// Ask sends a question against a previously indexed document and returns generated_text.
func (c *Client) Ask(ctx context.Context, documentName string, prompt string) (string, error) {
	form := url.Values{}
	form.Set("org", c.org)
	form.Set("question", prompt)
	form.Set("directory", c.directory)
	form.Set("doc_name", path.Base(strings.TrimSpace(documentName)))
	form.Set("contextMode", contextModeDocContext)

	raw, err := c.do(ctx, "/query", "application/x-www-form-urlencoded", []byte(form.Encode()), 0)
	if err != nil {
		return "", &TransportError{Op: "ask", Err: err}
	}

	var resp queryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &MalformedResponseError{Op: "ask", Reason: "response is not a JSON object: " + err.Error(), Raw: string(raw)}
	}
	if resp.GeneratedText == nil {
		return "", &MalformedResponseError{Op: "ask", Reason: "generated_text missing", Raw: string(raw)}
	}
	if strings.TrimSpace(*resp.GeneratedText) == "" {
		return "", &MalformedResponseError{Op: "ask", Reason: "generated_text empty", Raw: string(raw)}
	}
	return *resp.GeneratedText, nil
}

// ---------------- HTTP helpers ----------------

func (c *Client) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.credential != "" {
		// The gateway expects the token as-is, without a scheme prefix.
		req.Header.Set("Authorization", c.credential)
	}
}

func (c *Client) do(ctx context.Context, path string, contentType string, body []byte, retries int) ([]byte, error) {
	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= retries; attempt++ {
		if ctx2.Err() != nil {
			return nil, ctx2.Err()
		}

		req, err := http.NewRequestWithContext(ctx2, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = parseHTTPError(resp.StatusCode, raw)
			} else {
				return raw, nil
			}
		}

		if attempt < retries {
			select {
			case <-ctx2.Done():
				return nil, ctx2.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return nil, lastErr
}

func statusCodeValue(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
