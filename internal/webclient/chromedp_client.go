package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/raysh454/cleanweb/internal/logging"
)

// ChromedpClient renders pages in headless Chrome and returns the DOM after
// the network has gone idle, so script-inserted images are present.
type ChromedpClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	idleAfter   time.Duration
	timeout     time.Duration
	logger      logging.Logger
}

func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	cfg = cfg.withDefaults()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.ShowBrowser {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	componentLogger := logger.With(logging.Field{Key: "backend", Value: "chromedp"})
	componentLogger.Debug("created chromedp webclient",
		logging.Field{Key: "idle_after", Value: cfg.IdleAfter.String()})

	return &ChromedpClient{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		idleAfter:   cfg.IdleAfter,
		timeout:     cfg.Timeout,
		logger:      componentLogger,
	}, nil
}

// waitNetworkIdle returns a channel closed once no request has been in
// flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idle := make(chan struct{})
	var active int32
	var timerMu sync.Mutex
	var timer *time.Timer
	var once sync.Once

	arm := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&active) == 0 {
				once.Do(func() { close(idle) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&active, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&active, -1) <= 0 {
				arm()
			}
		}
	})
	arm()
	return idle
}

// Do navigates to req.URL and returns the rendered outer HTML. Only GET is
// supported.
func (c *ChromedpClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if m := strings.ToUpper(req.Method); m != "" && m != http.MethodGet {
		return nil, fmt.Errorf("chromedp backend supports GET only, got %s", m)
	}

	tabCtx, cancelTab := chromedp.NewContext(c.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, e.Response.Status)
		}
	})
	idle := waitNetworkIdle(tabCtx, c.idleAfter)

	c.logger.Debug("navigating", logging.Field{Key: "url", Value: req.URL})
	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(req.URL)); err != nil {
		return nil, fmt.Errorf("chromedp navigate %s: %w", req.URL, err)
	}

	select {
	case <-idle:
	case <-tabCtx.Done():
		return nil, fmt.Errorf("chromedp wait idle %s: %w", req.URL, tabCtx.Err())
	}

	actions := []chromedp.Action{}
	if sel := req.Options["wait_selector"]; sel != "" {
		actions = append(actions, chromedp.WaitVisible(sel, chromedp.ByQuery))
	}
	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp read dom %s: %w", req.URL, err)
	}

	code := int(status.Load())
	if code == 0 {
		code = http.StatusOK
	}
	return &Response{
		Request:    req,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(html),
		StatusCode: code,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *ChromedpClient) Close() error {
	c.logger.Debug("closing chromedp webclient")
	c.allocCancel()
	return nil
}
