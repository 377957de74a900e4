package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/cleanweb/internal/app"
	"github.com/raysh454/cleanweb/internal/classifier"
	"github.com/raysh454/cleanweb/internal/dom"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/settingsstore"
)

// maxLoggedBody caps how much of a request body is copied into the log.
const maxLoggedBody = 512

// Server is the HTTP + WebSocket API surface for cleanweb.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer creates a new Server with its own Application.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.AppConfig.ListenAddr
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	application, err := app.NewApplication(cfg.AppConfig, logger, cfg.AppOptions)
	if err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:    cfg,
		app:    application,
		router: r,
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

// App returns the underlying application for advanced use (tests, etc.).
func (s *Server) App() *app.Application {
	return s.app
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/classify", s.optionsHandler("POST"))
	r.Options("/sessions", s.optionsHandler("GET, POST"))
	r.Options("/profiles/{name}", s.optionsHandler("GET, PUT, DELETE"))

	r.Get("/healthz", s.handleHealth)

	// Classifiers
	r.Get("/classifiers", s.handleListClassifiers)
	r.Post("/classify", s.handleClassify)

	// Sessions
	r.Post("/sessions", s.handleCreateSession)
	r.Get("/sessions", s.handleListSessions)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Options("/", s.optionsHandler("GET, DELETE"))
		r.Options("/settings", s.optionsHandler("GET, PATCH"))
		r.Options("/{action}", s.optionsHandler("GET, POST"))

		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleDeleteSession)
		r.Post("/start", s.handleStartSession)
		r.Post("/stop", s.handleStopSession)
		r.Post("/refresh", s.handleRefreshSession)
		r.Get("/stats", s.handleSessionStats)
		r.Get("/settings", s.handleGetSettings)
		r.Patch("/settings", s.handlePatchSettings)
		r.Post("/mutations", s.handleMutate)
		r.Get("/document", s.handleDocument)
		r.Get("/diff", s.handleDiff)
	})

	// Profiles
	r.Get("/profiles", s.handleListProfiles)
	r.Get("/profiles/{name}", s.handleGetProfile)
	r.Put("/profiles/{name}", s.handlePutProfile)
	r.Delete("/profiles/{name}", s.handleDeleteProfile)

	// WebSockets for live stats
	r.Get("/ws/sessions/{id}/stats", s.handleStatsWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			logged := bodyBytes
			if len(logged) > maxLoggedBody {
				logged = logged[:maxLoggedBody]
			}
			fields = append(fields, logging.Field{Key: "body", Value: string(logged)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the application and underlying resources.
func (s *Server) Close() {
	if s.app != nil {
		if err := s.app.Shutdown(context.Background()); err != nil {
			s.logger.Warn("shutting down application", logging.Field{Key: "error", Value: err.Error()})
		}
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidRequest),
		errors.Is(err, classifier.ErrInvalidInput),
		errors.Is(err, settingsstore.ErrInvalidName),
		errors.Is(err, dom.ErrBadSelector):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, classifier.ErrUnknownClassifier),
		errors.Is(err, settingsstore.ErrProfileNotFound),
		errors.Is(err, dom.ErrNoSuchTarget):
		return http.StatusNotFound
	case errors.Is(err, classifier.ErrDuplicateClassifier):
		return http.StatusConflict
	case errors.Is(err, app.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, app.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes it with its mapped status.
func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	status := statusFor(err)
	fields := []logging.Field{{Key: "error", Value: err.Error()}, {Key: "status", Value: status}}
	if status >= http.StatusInternalServerError {
		s.logger.Error(action, fields...)
	} else {
		s.logger.Warn(action, fields...)
	}
	writeError(w, status, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", app.ErrInvalidRequest, err)
	}
	return nil
}

// queryBool reads an optional boolean query parameter.
func queryBool(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be a boolean", app.ErrInvalidRequest, name)
	}
	return b, nil
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: len(s.app.Sessions.List())})
}

// Classifiers

func (s *Server) handleListClassifiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ClassifiersResponse{
		Default:     s.app.Classifiers.Default(),
		Classifiers: s.app.Classifiers.Names(),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var body ClassifyRequest
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, "decoding classify body", err)
		return
	}
	c, err := s.app.Classifiers.Get(body.Classifier)
	if err != nil {
		s.fail(w, "classify", err)
		return
	}
	c = classifier.Fork(c)
	if t, ok := c.(classifier.Tunable); ok {
		if body.Threshold != nil {
			t.SetThreshold(*body.Threshold)
		}
		if body.StrictMode != nil {
			t.SetStrictMode(*body.StrictMode)
		}
	}
	res, err := c.Classify(r.Context(), classifier.URLInput(body.URL))
	if err != nil {
		s.fail(w, "classify", err)
		return
	}
	res.Classifier = c.Name()
	s.logger.Info("classified image",
		logging.Field{Key: "url", Value: body.URL},
		logging.Field{Key: "classifier", Value: res.Classifier},
		logging.Field{Key: "problematic", Value: res.IsProblematic})
	writeJSON(w, http.StatusOK, res)
}

// Sessions

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body app.SessionRequest
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, "decoding create session body", err)
		return
	}
	sess, err := s.app.Sessions.Create(r.Context(), body)
	if err != nil {
		s.fail(w, "creating session", err)
		return
	}
	s.logger.Info("created session", logging.Field{Key: "session", Value: sess.ID})
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.app.Sessions.List()
	out := SessionListResponse{Sessions: make([]app.SessionInfo, 0, len(sessions))}
	for _, sess := range sessions {
		out.Sessions = append(out.Sessions, sess.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "getting session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.app.Sessions.Delete(id); err != nil {
		s.fail(w, "deleting session", err)
		return
	}
	s.logger.Info("deleted session", logging.Field{Key: "session", Value: id})
	writeJSON(w, http.StatusNoContent, nil)
}

// handleStartSession starts filtering. By default it answers once existing
// images are decided; wait=false answers 202 at once.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	immediate, err := queryBool(r, "immediate", false)
	if err != nil {
		s.fail(w, "starting session", err)
		return
	}
	wait, err := queryBool(r, "wait", true)
	if err != nil {
		s.fail(w, "starting session", err)
		return
	}
	sess, err := s.app.Sessions.Start(chi.URLParam(r, "id"), immediate, wait)
	if err != nil {
		s.fail(w, "starting session", err)
		return
	}
	status := http.StatusOK
	if !wait {
		status = http.StatusAccepted
	}
	s.logger.Info("started session",
		logging.Field{Key: "session", Value: sess.ID},
		logging.Field{Key: "immediate", Value: immediate})
	writeJSON(w, status, sess.Core.Stats())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Sessions.Stop(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "stopping session", err)
		return
	}
	s.logger.Info("stopped session", logging.Field{Key: "session", Value: sess.ID})
	writeJSON(w, http.StatusOK, sess.Core.Stats())
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.app.Sessions.Refresh(id)
	if err != nil {
		s.fail(w, "refreshing session", err)
		return
	}
	sess, err := s.app.Sessions.Get(id)
	if err != nil {
		s.fail(w, "refreshing session", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Processed: n, Stats: sess.Core.Stats()})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "getting stats", err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Core.Stats())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "getting settings", err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Core.Settings())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, "decoding settings patch", err)
		return
	}
	settings, err := s.app.Sessions.UpdateSettings(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, "updating settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	var body app.Mutation
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, "decoding mutation body", err)
		return
	}
	n, err := s.app.Sessions.Mutate(chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, "mutating document", err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Changed: n})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.app.Sessions.Document(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "rendering document", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	diff, err := s.app.Sessions.Diff(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "diffing document", err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// Profiles

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	ps, err := s.app.Profiles.List(r.Context())
	if err != nil {
		s.fail(w, "listing profiles", err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.Profiles.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, "getting profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	settings := model.DefaultSettings()
	if err := decodeBody(r, &settings); err != nil {
		s.fail(w, "decoding profile body", err)
		return
	}
	p, err := s.app.Profiles.Put(r.Context(), chi.URLParam(r, "name"), settings)
	if err != nil {
		s.fail(w, "storing profile", err)
		return
	}
	s.logger.Info("stored profile", logging.Field{Key: "profile", Value: p.Name})
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Profiles.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.fail(w, "deleting profile", err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// WebSockets

// handleStatsWS streams a stats frame on connect and then whenever the
// stats change, checked every StatsInterval. The stream ends when the
// client goes away or the session is deleted.
func (s *Server) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.app.Sessions.Get(id)
	if err != nil {
		s.fail(w, "opening stats stream", err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	interval := s.app.Config.StatsInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	for {
		frame, err := json.Marshal(sess.Core.Stats())
		if err != nil {
			s.logger.Error("encoding stats frame", logging.Field{Key: "error", Value: err.Error()})
			return
		}
		if !bytes.Equal(frame, last) {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			last = frame
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.app.Sessions.Get(id); err != nil {
			_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		}
	}
}
