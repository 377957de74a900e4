// Package webclient fetches pages and images through pluggable backends
// selected by name.
package webclient

import (
	"context"
	"errors"
	"net/http"
	"time"
)

type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// Options carries backend-specific hints, e.g. "wait_selector" for chromedp.
	Options map[string]string
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config is what backends are constructed from. app.Config fills it in.
type Config struct {
	Client       Client
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64

	// chromedp only
	IdleAfter   time.Duration
	ShowBrowser bool
}

const (
	DefaultTimeout      = 30 * time.Second
	DefaultIdleAfter    = 2 * time.Second
	DefaultMaxBodyBytes = 20 << 20
	DefaultUserAgent    = "cleanweb/1.0"
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

var (
	ErrNilRequest   = errors.New("request cannot be nil")
	ErrBodyTooLarge = errors.New("response body exceeds limit")
)
