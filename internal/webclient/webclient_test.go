package webclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/webclient"
)

// ─── Factory ────────────────────────────────────────────────────────────

func TestNewWebClient_DefaultBackend(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{}, logging.Nop())
	if err != nil {
		t.Fatalf("Failed to create default client: %v", err)
	}
	defer client.Close()
	if _, ok := client.(*webclient.NetHTTPClient); !ok {
		t.Fatalf("expected nethttp backend by default, got %T", client)
	}
}

func TestNewWebClient_CaseInsensitiveName(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: " NetHTTP "}, logging.Nop())
	if err != nil {
		t.Fatalf("NewWebClient: %v", err)
	}
	defer client.Close()
}

// Chromedp construction only builds an allocator; no browser is launched
// until the first request.
func TestNewWebClient_ChromeDP(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: webclient.ClientChromedp}, logging.Nop())
	if err != nil {
		t.Skipf("Skipping chromedp test: %v", err)
	}
	defer client.Close()
	if _, ok := client.(*webclient.ChromedpClient); !ok {
		t.Fatalf("expected chromedp backend, got %T", client)
	}
}

func TestNewWebClient_UnknownBackend(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: "unknown"}, logging.Nop())
	if err == nil {
		t.Fatal("Expected error for unknown backend, got nil")
	}
	if client != nil {
		t.Fatal("Expected nil client for unknown backend")
	}
	if !strings.Contains(err.Error(), "nethttp") {
		t.Errorf("error should list available backends: %v", err)
	}
}

func TestRegisterBackend_CustomConstructor(t *testing.T) {
	t.Parallel()
	called := false
	webclient.RegisterBackend("Fake-Test", func(cfg webclient.Config, logger logging.Logger) (webclient.WebClient, error) {
		called = true
		return webclient.NewNetHTTPClient(cfg, logger, nil)
	})
	if !slices.Contains(webclient.ListBackends(), "fake-test") {
		t.Fatalf("backend not listed: %v", webclient.ListBackends())
	}
	client, err := webclient.NewWebClient(webclient.Config{Client: "fake-test"}, logging.Nop())
	if err != nil {
		t.Fatalf("NewWebClient: %v", err)
	}
	defer client.Close()
	if !called {
		t.Error("custom constructor not used")
	}
}

// ─── NetHTTPClient.Do ──────────────────────────────────────────────────

func TestNetHTTPClient_Do_GET_ReturnsBody(t *testing.T) {
	t.Parallel()
	var agent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		w.Header().Set("X-Custom", "hello")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "response body")
	}))
	defer ts.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	resp, err := client.Get(context.Background(), ts.URL+"/test")
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !resp.OK() {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "response body" {
		t.Errorf("expected 'response body', got %q", resp.Body)
	}
	if resp.Headers.Get("X-Custom") != "hello" {
		t.Errorf("expected X-Custom header 'hello', got %q", resp.Headers.Get("X-Custom"))
	}
	if agent != webclient.DefaultUserAgent {
		t.Errorf("expected default user agent, got %q", agent)
	}
}

func TestNetHTTPClient_Do_POST_SendsBodyAndHeaders(t *testing.T) {
	t.Parallel()
	var gotBody, gotMethod, gotType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), ts.Client())
	defer client.Close()

	resp, err := client.Do(context.Background(), &webclient.Request{
		Method:  "post",
		URL:     ts.URL + "/submit",
		Headers: http.Header{"Content-Type": {"image/png"}},
		Body:    []byte("payload"),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotMethod != http.MethodPost || gotBody != "payload" || gotType != "image/png" {
		t.Errorf("server saw method=%q body=%q type=%q", gotMethod, gotBody, gotType)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
}

func TestNetHTTPClient_Do_BodyLimit(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{MaxBodyBytes: 16}, logging.Nop(), ts.Client())
	defer client.Close()

	if _, err := client.Get(context.Background(), ts.URL); !errors.Is(err, webclient.ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestNetHTTPClient_Do_NilRequest(t *testing.T) {
	t.Parallel()
	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), nil)
	if _, err := client.Do(context.Background(), nil); !errors.Is(err, webclient.ErrNilRequest) {
		t.Fatalf("expected ErrNilRequest, got %v", err)
	}
}

func TestNetHTTPClient_Do_ContextCancelled(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), ts.Client())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Get(ctx, ts.URL); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// ─── ChromedpClient ────────────────────────────────────────────────────

func TestChromedpClient_RejectsNonGET(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewChromedpClient(webclient.Config{}, logging.Nop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer client.Close()
	if _, err := client.Do(context.Background(), &webclient.Request{Method: "POST", URL: "http://example.invalid"}); err == nil {
		t.Fatal("expected error for POST")
	}
	if _, err := client.Do(context.Background(), nil); !errors.Is(err, webclient.ErrNilRequest) {
		t.Fatalf("expected ErrNilRequest, got %v", err)
	}
}
