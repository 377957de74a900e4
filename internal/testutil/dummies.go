// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/cleanweb/internal/classifier"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns the number of warnings recorded so far.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyResponse is a canned reply for one URL.
type DummyResponse struct {
	Status int
	Body   []byte
}

// DummyWebClient implements webclient.WebClient.
// Responses[url] is served when present; otherwise it returns body
// "ok:<url>" with status 200. Set FailURLs[url] = true to force an error.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Responses     map[string]DummyResponse
	FailURLs      map[string]bool

	mu       sync.Mutex
	Requests []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, &errString{"dummy fetch fail for " + req.URL}
	}
	if r, ok := d.Responses[req.URL]; ok {
		status := r.Status
		if status == 0 {
			status = http.StatusOK
		}
		return &webclient.Response{Request: req, Body: r.Body, StatusCode: status, FetchedAt: time.Now()}, nil
	}

	return &webclient.Response{
		Request:    req,
		Body:       []byte("ok:" + req.URL),
		StatusCode: http.StatusOK,
		FetchedAt:  time.Now(),
	}, nil
}

// RequestCount returns how many requests were made for url.
func (d *DummyWebClient) RequestCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.Requests {
		if r.URL == url {
			n++
		}
	}
	return n
}

func (d *DummyWebClient) Close() error { return nil }

// ─── Classifier ────────────────────────────────────────────────────────

// DummyClassifier implements classifier.Classifier and classifier.Tunable.
// Results[locator] is returned when present, else Default (a clean result
// when nil). Errors[locator] forces an error. When Gate is non-nil every call
// blocks until it is closed or the context ends.
type DummyClassifier struct {
	Results map[string]*model.Result
	Default *model.Result
	Errors  map[string]error
	Gate    chan struct{}

	mu        sync.Mutex
	Calls     []string
	Threshold float64
	Strict    bool
}

func (d *DummyClassifier) Name() string { return "dummy" }

func (d *DummyClassifier) Classify(ctx context.Context, in classifier.Input) (*model.Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.Calls = append(d.Calls, in.URL)
	d.mu.Unlock()

	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := d.Errors[in.URL]; ok {
		return nil, err
	}
	if r, ok := d.Results[in.URL]; ok {
		cp := *r
		return &cp, nil
	}
	if d.Default != nil {
		cp := *d.Default
		return &cp, nil
	}
	return &model.Result{Confidence: 1, Reasons: []string{}, Classifier: "dummy"}, nil
}

func (d *DummyClassifier) SetThreshold(t float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Threshold = t
}

func (d *DummyClassifier) SetStrictMode(s bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Strict = s
}

// CallCount returns how many classifications were requested.
func (d *DummyClassifier) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}

// Severity returns a result with the given severity and verdict.
func Severity(s float64, problematic bool) *model.Result {
	return &model.Result{Severity: s, IsProblematic: problematic, Confidence: 0.9, Reasons: []string{}}
}

// ─── Images ────────────────────────────────────────────────────────────

// GradientPNG encodes a w×h horizontal grey gradient. Ascending and
// descending gradients are perceptually opposite.
func GradientPNG(w, h int, ascending bool) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		v := uint8(x * 255 / max(1, w-1))
		if !ascending {
			v = 255 - v
		}
		for y := 0; y < h; y++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
