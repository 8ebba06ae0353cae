package analysis

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		Endpoint:   srv.URL,
		Credential: "secret-token",
		Org:        "acme",
		Directory:  "logs",
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresEndpointAndOrg(t *testing.T) {
	if _, err := New(Options{Org: "acme"}); err == nil {
		t.Fatalf("New without endpoint: want error")
	}
	if _, err := New(Options{Endpoint: "http://localhost:9000"}); err == nil {
		t.Fatalf("New without org: want error")
	}
}

func TestSubmitSendsMultipartFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" {
			t.Errorf("path: want=%q got=%q", "/upload", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "secret-token" {
			t.Errorf("authorization: want=%q got=%q", "secret-token", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		for field, want := range map[string]string{"org": "acme", "directory": "logs", "contextMode": "multi_docs"} {
			if got := r.FormValue(field); got != want {
				t.Errorf("%s: want=%q got=%q", field, want, got)
			}
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			b, _ := io.ReadAll(f)
			if string(b) != "line1\n" || hdr.Filename != "auth.log" {
				t.Errorf("file: name=%q body=%q", hdr.Filename, string(b))
			}
		}
		_, _ = w.Write([]byte(`{"status_code":200,"message":"ok"}`))
	})

	res, err := c.Submit(context.Background(), []byte("line1\n"), "uploads/auth.log")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Accepted || res.StatusCode != 200 {
		t.Fatalf("result: want accepted 200 got=%+v", res)
	}
}

func TestSubmitNotAcceptedIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":"409","message":"duplicate"}`))
	})
	res, err := c.Submit(context.Background(), []byte("x"), "auth.log")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Accepted || res.StatusCode != 409 {
		t.Fatalf("result: want rejected 409 got=%+v", res)
	}
	if len(res.Raw) == 0 {
		t.Fatalf("raw response: want non-empty")
	}
}

func TestSubmitTransportErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream down"}`))
	})
	_, err := c.Submit(context.Background(), []byte("x"), "auth.log")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want *TransportError got %T (%v)", err, err)
	}
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadGateway || he.Message != "upstream down" {
		t.Fatalf("want wrapped HTTPError 502 got %v", err)
	}

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err = c.Submit(context.Background(), []byte("x"), "auth.log")
	if !errors.As(err, &te) {
		t.Fatalf("undecodable envelope: want *TransportError got %T (%v)", err, err)
	}
}

func TestAwaitReadyReturnsTrueWhenProcessed(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_doc_status" {
			t.Errorf("path: want=%q got=%q", "/get_doc_status", r.URL.Path)
		}
		if got := r.FormValue("doc_name"); got != "auth.log" {
			t.Errorf("doc_name: want=%q got=%q", "auth.log", got)
		}
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"status":"processing"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"processed"}`))
	})

	ok, err := c.AwaitReady(context.Background(), "auth.log", 10, time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	if !ok {
		t.Fatalf("ready: want=true got=false")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("polls: want=3 got=%d", got)
	}
}

func TestAwaitReadyExhaustsWithoutError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1)%2 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"status":"processing"}`))
	})

	ok, err := c.AwaitReady(context.Background(), "auth.log", 4, time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	if ok {
		t.Fatalf("ready: want=false got=true")
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("polls: want=4 got=%d", got)
	}
}

func TestAwaitReadyHonoursCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"processing"}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := c.AwaitReady(ctx, "auth.log", 3, time.Second)
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled: want (false, context.Canceled) got (%v, %v)", ok, err)
	}
}

func TestAskReturnsGeneratedText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("path: want=%q got=%q", "/query", r.URL.Path)
		}
		if got := r.FormValue("contextMode"); got != "doc_context" {
			t.Errorf("contextMode: want=%q got=%q", "doc_context", got)
		}
		if got := r.FormValue("question"); got != "classify" {
			t.Errorf("question: want=%q got=%q", "classify", got)
		}
		_, _ = w.Write([]byte(`{"generated_text":"{\"a\":1}"}`))
	})
	text, err := c.Ask(context.Background(), "auth.log", "classify")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if text != `{"a":1}` {
		t.Fatalf("text: want=%q got=%q", `{"a":1}`, text)
	}
}

func TestAskMalformedResponse(t *testing.T) {
	for name, body := range map[string]string{
		"missing field": `{"answer":"x"}`,
		"empty field":   `{"generated_text":"  "}`,
		"not json":      `oops`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.Ask(context.Background(), "auth.log", "q")
			var me *MalformedResponseError
			if !errors.As(err, &me) {
				t.Fatalf("want *MalformedResponseError got %T (%v)", err, err)
			}
			if me.Raw != body {
				t.Fatalf("raw: want=%q got=%q", body, me.Raw)
			}
		})
	}
}

func TestAskTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{Endpoint: url, Org: "acme", Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Ask(context.Background(), "auth.log", "q")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want *TransportError got %T (%v)", err, err)
	}
}
