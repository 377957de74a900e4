// Package classifier scores images for inappropriate content. Several
// interchangeable variants share the Classifier contract and are selected
// by name through a Registry.
package classifier

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/raysh454/cleanweb/internal/model"
)

var (
	// ErrInvalidInput is returned for an empty buffer or empty URL. It is
	// always surfaced to the caller.
	ErrInvalidInput = errors.New("invalid classification input")
	// ErrClassifierUnavailable marks a model that failed to load. Callers
	// recover by falling back to the heuristic path.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrUnknownClassifier     = errors.New("unknown classifier")
	ErrDuplicateClassifier   = errors.New("duplicate classifier name")
)

// Input is either a URL reference or raw image bytes. When both are set the
// bytes win and the URL is kept for reporting and heuristics.
type Input struct {
	URL  string
	Data []byte
}

func URLInput(u string) Input   { return Input{URL: u} }
func BytesInput(b []byte) Input { return Input{Data: b} }

func (in Input) HasBytes() bool { return len(in.Data) > 0 }

// Validate rejects inputs that carry neither a URL nor any bytes.
func (in Input) Validate() error {
	if in.Data != nil && len(in.Data) == 0 {
		return ErrInvalidInput
	}
	if in.URL == "" && len(in.Data) == 0 {
		return ErrInvalidInput
	}
	return nil
}

type Classifier interface {
	Classify(ctx context.Context, in Input) (*model.Result, error)
	Name() string
}

// Tunable classifiers accept runtime threshold and strict-mode changes.
type Tunable interface {
	SetThreshold(threshold float64)
	SetStrictMode(strict bool)
}

// Forker classifiers can produce an independent copy with their own tunable
// parameters, sharing expensive state such as a loaded model.
type Forker interface {
	Fork() Classifier
}

// Fork returns a private copy of c when it supports forking, else c itself.
func Fork(c Classifier) Classifier {
	if f, ok := c.(Forker); ok {
		return f.Fork()
	}
	return c
}

// params is the tunable state embedded by classifiers that compute their own
// verdict.
type params struct {
	mu        sync.RWMutex
	threshold float64
	strict    bool
}

func newParams() *params {
	return &params{threshold: model.DefaultSettings().SeverityThreshold}
}

func (p *params) SetThreshold(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threshold = model.ClampSeverity(t)
}

func (p *params) SetStrictMode(s bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strict = s
}

func (p *params) snapshot() (threshold float64, strict bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.threshold, p.strict
}

func (p *params) clone() *params {
	t, s := p.snapshot()
	return &params{threshold: t, strict: s}
}

// verdict fills Severity and IsProblematic from a measured severity.
func (p *params) verdict(r *model.Result, measured float64) *model.Result {
	t, s := p.snapshot()
	r.Severity, r.IsProblematic = model.Verdict(measured, t, s)
	return r
}

// safeResult is returned when analysis fails after input validation.
func safeResult(name string, err error) *model.Result {
	return &model.Result{
		Severity:      0,
		IsProblematic: false,
		Confidence:    0,
		Reasons:       []string{"analysis error: " + err.Error()},
		Classifier:    name,
	}
}

// IsAnalysisError reports whether r is a degraded result produced by an
// internal failure.
func IsAnalysisError(r *model.Result) bool {
	return r != nil && r.Confidence == 0 && len(r.Reasons) == 1 && strings.HasPrefix(r.Reasons[0], "analysis error:")
}
