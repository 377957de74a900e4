package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/raysh454/cleanweb/internal/classifier"
	"github.com/raysh454/cleanweb/internal/core"
	"github.com/raysh454/cleanweb/internal/dom"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/settingsstore"
	"github.com/raysh454/cleanweb/internal/webclient"
)

var (
	// ErrInvalidRequest marks a malformed session or mutation request.
	ErrInvalidRequest  = errors.New("invalid request")
	ErrSessionNotFound = errors.New("session not found")
	// ErrSourceUnavailable is returned when a session document cannot be
	// fetched.
	ErrSourceUnavailable = errors.New("document source unavailable")
	ErrShuttingDown      = errors.New("session manager is shutting down")
)

// SessionRequest creates a session from a URL or from inline HTML.
type SessionRequest struct {
	URL        string `json:"url,omitempty"`
	HTML       string `json:"html,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Profile    string `json:"profile,omitempty"`
	Classifier string `json:"classifier,omitempty"`
	// Render fetches URL through the headless browser backend.
	Render bool `json:"render,omitempty"`
}

// Session is one filtered document with its own pipeline.
type Session struct {
	ID        string
	Source    string
	Profile   string
	CreatedAt time.Time
	Core      *core.Core

	original string
}

// SessionInfo is the JSON view of a session.
type SessionInfo struct {
	ID         string      `json:"id"`
	Source     string      `json:"source"`
	Profile    string      `json:"profile"`
	Classifier string      `json:"classifier"`
	CreatedAt  time.Time   `json:"created_at"`
	Stats      model.Stats `json:"stats"`
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		Source:     s.Source,
		Profile:    s.Profile,
		Classifier: s.Core.ClassifierName(),
		CreatedAt:  s.CreatedAt,
		Stats:      s.Core.Stats(),
	}
}

// Mutation edits a session document. HTML appends a fragment to the first
// element matching Selector; otherwise Attribute is set to Value on every
// match.
type Mutation struct {
	Selector  string `json:"selector"`
	HTML      string `json:"html,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Value     string `json:"value,omitempty"`
}

func (m Mutation) validate() error {
	if strings.TrimSpace(m.Selector) == "" {
		return fmt.Errorf("%w: selector is required", ErrInvalidRequest)
	}
	if (m.HTML == "") == (m.Attribute == "") {
		return fmt.Errorf("%w: exactly one of html or attribute is required", ErrInvalidRequest)
	}
	return nil
}

// Manager owns the live sessions. Each session gets a private fork of its
// classifier so settings changes stay local to it.
type Manager struct {
	cfg         *Config
	classifiers *classifier.Registry
	profiles    *settingsstore.Store
	logger      logging.Logger

	// ctx bounds every pipeline run; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	clientsMu sync.Mutex
	clients   map[webclient.Client]webclient.WebClient

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// ManagerOptions injects ready-made page fetchers, keyed by backend. Missing
// backends are constructed from Config.WebClient on first use.
type ManagerOptions struct {
	Clients map[webclient.Client]webclient.WebClient
}

func NewManager(cfg *Config, reg *classifier.Registry, profiles *settingsstore.Store, logger logging.Logger, opts ManagerOptions) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	clients := make(map[webclient.Client]webclient.WebClient, len(opts.Clients))
	for k, v := range opts.Clients {
		clients[k] = v
	}
	return &Manager{
		cfg:         cfg,
		classifiers: reg,
		profiles:    profiles,
		logger:      logger.With(logging.Field{Key: "component", Value: "sessions"}),
		ctx:         ctx,
		cancel:      cancel,
		clients:     clients,
		sessions:    make(map[string]*Session),
	}
}

// Create builds a stopped session. The document is fetched when req.URL is
// set, taken verbatim from req.HTML otherwise.
func (m *Manager) Create(ctx context.Context, req SessionRequest) (*Session, error) {
	hasURL, hasHTML := strings.TrimSpace(req.URL) != "", req.HTML != ""
	if hasURL == hasHTML {
		return nil, fmt.Errorf("%w: exactly one of url or html is required", ErrInvalidRequest)
	}

	c, err := m.classifiers.Get(req.Classifier)
	if err != nil {
		return nil, err
	}
	profile := req.Profile
	if profile == "" {
		profile = m.cfg.DefaultProfile
	}
	profile, err = settingsstore.NormalizeName(profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	settings, err := m.profiles.Settings(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", profile, err)
	}

	source, base, page := "inline", req.BaseURL, req.HTML
	if hasURL {
		source = strings.TrimSpace(req.URL)
		if base == "" {
			base = source
		}
		if page, err = m.fetchPage(ctx, source, req.Render); err != nil {
			return nil, err
		}
	}

	doc, err := dom.ParseString(page, base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	original, err := doc.Render()
	if err != nil {
		return nil, fmt.Errorf("rendering document: %w", err)
	}

	id := uuid.New().String()
	s := &Session{
		ID:        id,
		Source:    source,
		Profile:   profile,
		CreatedAt: time.Now().UTC(),
		original:  original,
		Core: core.New(doc, classifier.Fork(c), settings, core.Options{
			MaxConcurrency: m.cfg.MaxConcurrency,
			Logger:         m.logger.With(logging.Field{Key: "session", Value: id}),
		}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}
	m.sessions[id] = s
	m.logger.Info("created session",
		logging.Field{Key: "session", Value: id},
		logging.Field{Key: "source", Value: source},
		logging.Field{Key: "profile", Value: profile},
		logging.Field{Key: "classifier", Value: c.Name()})
	return s, nil
}

func (m *Manager) fetchPage(ctx context.Context, url string, render bool) (string, error) {
	backend := m.cfg.WebClient.Client
	if render {
		backend = webclient.ClientChromedp
	}
	wc, err := m.client(backend)
	if err != nil {
		return "", err
	}
	resp, err := wc.Do(ctx, &webclient.Request{Method: "GET", URL: url})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: %s returned status %d", ErrSourceUnavailable, url, resp.StatusCode)
	}
	return string(resp.Body), nil
}

func (m *Manager) client(backend webclient.Client) (webclient.WebClient, error) {
	if backend == "" {
		backend = webclient.ClientNetHTTP
	}
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if wc, ok := m.clients[backend]; ok {
		return wc, nil
	}
	cfg := m.cfg.WebClient
	cfg.Client = backend
	wc, err := webclient.NewWebClient(cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.clients[backend] = wc
	return wc, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns the sessions oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Delete stops the session, restoring its document, and forgets it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	// Close rather than Stop so a background start that already holds s
	// cannot bring the core back after it left the map.
	s.Core.Close()
	m.logger.Info("deleted session", logging.Field{Key: "session", Value: id})
	return nil
}

// Start runs the pipeline over the session's existing images. With wait it
// returns once they are all decided; otherwise it returns at once and the
// work continues in the background.
func (m *Manager) Start(id string, immediate, wait bool) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	closed := m.closed
	if !closed && !wait {
		m.wg.Add(1)
	}
	m.mu.RUnlock()
	if closed {
		return nil, ErrShuttingDown
	}
	run := func() {
		if immediate {
			s.Core.StartWithImmediateHiding(m.ctx)
		} else {
			s.Core.Start(m.ctx)
		}
	}
	if wait {
		run()
		return s, nil
	}
	go func() {
		defer m.wg.Done()
		run()
	}()
	return s, nil
}

func (m *Manager) Stop(id string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.Core.Stop()
	return s, nil
}

// Refresh re-decides every image under the current settings and returns
// how many were processed.
func (m *Manager) Refresh(id string) (int, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	return s.Core.Refresh(m.ctx), nil
}

// UpdateSettings applies p to the live session and persists it to the
// session's profile.
func (m *Manager) UpdateSettings(ctx context.Context, id string, p model.SettingsPatch) (model.Settings, error) {
	s, err := m.Get(id)
	if err != nil {
		return model.Settings{}, err
	}
	if p.IsEmpty() {
		return s.Core.Settings(), nil
	}
	updated := s.Core.UpdateSettings(p)
	if _, err := m.profiles.Put(ctx, s.Profile, updated); err != nil {
		return updated, fmt.Errorf("persisting profile %s: %w", s.Profile, err)
	}
	return updated, nil
}

// Mutate edits the session document and returns how many elements changed.
// Running sessions pick the change up through their watcher.
func (m *Manager) Mutate(id string, mut Mutation) (int, error) {
	if err := mut.validate(); err != nil {
		return 0, err
	}
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	doc := s.Core.Document()
	if mut.HTML != "" {
		target, err := doc.QueryFirst(mut.Selector)
		if err != nil {
			return 0, err
		}
		added, err := doc.AppendHTML(target, mut.HTML)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return len(added), nil
	}
	targets, err := doc.QueryAll(mut.Selector)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, fmt.Errorf("%w: %s", dom.ErrNoSuchTarget, mut.Selector)
	}
	for _, el := range targets {
		el.SetAttr(mut.Attribute, mut.Value)
	}
	return len(targets), nil
}

// Document renders the session document as currently filtered.
func (m *Manager) Document(id string) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}
	return s.Core.Document().Render()
}

// Diff compares the session document with its rendering at creation.
func (m *Manager) Diff(id string) (*DocumentDiff, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	head, err := s.Core.Document().Render()
	if err != nil {
		return nil, err
	}
	return newDocumentDiff(id, s.original, head), nil
}

// Shutdown cancels pipeline runs, waits for background starts unless ctx
// ends first, then stops every session concurrently and closes the page
// fetchers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	var errs []error
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for background starts: %w", ctx.Err()))
	}

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			s.Core.Close()
			return nil
		})
	}
	_ = g.Wait()

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for backend, wc := range m.clients {
		if err := wc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s client: %w", backend, err))
		}
	}
	m.clients = map[webclient.Client]webclient.WebClient{}
	m.logger.Info("sessions shut down", logging.Field{Key: "count", Value: len(sessions)})
	return errors.Join(errs...)
}
