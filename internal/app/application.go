package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/cleanweb/internal/classifier"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/settingsstore"
	"github.com/raysh454/cleanweb/internal/webclient"
)

// Application is the global runtime state container.
// It holds config and the core services that are shared
// across modules. Pass Application into modules that need access to the
// global state rather than using package-level variables.
type Application struct {
	Config *Config
	Logger logging.Logger

	Classifiers *classifier.Registry
	Profiles    *settingsstore.Store
	Sessions    *Manager

	// images fetches image bytes for classifiers and the model service.
	images webclient.WebClient
	redis  *classifier.RedisStore
}

// Options replaces pieces NewApplication would otherwise construct.
type Options struct {
	// Images is the client classifiers fetch with.
	Images webclient.WebClient
	// Pages are the session document fetchers, keyed by backend.
	Pages map[webclient.Client]webclient.WebClient
	// Store is the result cache, overriding the Redis/memory choice.
	Store classifier.ResultStore
}

// NewApplication opens the settings store and builds the classifier
// registry and session manager from cfg.
func NewApplication(cfg *Config, logger logging.Logger, opts Options) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	a := &Application{Config: cfg, Logger: logger, images: opts.Images}

	path, err := cfg.SettingsPath()
	if err != nil {
		return nil, err
	}
	if a.Profiles, err = settingsstore.Open(path, logger); err != nil {
		return nil, fmt.Errorf("opening settings store: %w", err)
	}

	if a.images == nil {
		imgCfg := cfg.WebClient
		imgCfg.Client = webclient.ClientNetHTTP
		if a.images, err = webclient.NewWebClient(imgCfg, logger); err != nil {
			_ = a.Profiles.Close()
			return nil, fmt.Errorf("creating image client: %w", err)
		}
	}

	regOpts := classifier.DefaultOptions{
		Logger:   logger,
		Fetcher:  a.images,
		Store:    opts.Store,
		CacheTTL: cfg.CacheTTL,
		Default:  cfg.Classifier,
	}
	if regOpts.Store == nil && cfg.CacheTTL > 0 {
		regOpts.Store = a.resultStore()
	}
	if cfg.ModelURL != "" {
		regOpts.Loader = classifier.NewHTTPModelLoader(cfg.ModelURL, a.images, logger)
	}
	if a.Classifiers, err = classifier.NewDefaultRegistry(regOpts); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("building classifier registry: %w", err)
	}

	a.Sessions = NewManager(cfg, a.Classifiers, a.Profiles, logger, ManagerOptions{Clients: opts.Pages})
	return a, nil
}

// resultStore prefers Redis and falls back to memory when it is unreachable.
func (a *Application) resultStore() classifier.ResultStore {
	if a.Config.RedisAddr == "" {
		return classifier.NewMemoryStore()
	}
	rs := classifier.NewRedisStore(classifier.RedisOptions{
		Address:  a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		a.Logger.Warn("redis unreachable, caching results in memory",
			logging.Field{Key: "addr", Value: a.Config.RedisAddr},
			logging.Field{Key: "error", Value: err.Error()})
		_ = rs.Close()
		return classifier.NewMemoryStore()
	}
	a.redis = rs
	return rs
}

// Start logs the effective configuration. Sessions are started on demand.
func (a *Application) Start() error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application starting",
		logging.Field{Key: "listen_addr", Value: a.Config.ListenAddr},
		logging.Field{Key: "classifiers", Value: a.Classifiers.Names()},
		logging.Field{Key: "default_classifier", Value: a.Classifiers.Default()},
		logging.Field{Key: "backend", Value: string(a.Config.WebClient.Client)})
	return nil
}

// Shutdown stops every session, then releases the stores and clients.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err := a.Sessions.Shutdown(shutdownCtx)
	if err != nil {
		a.Logger.Warn("session shutdown returned error", logging.Field{Key: "error", Value: err.Error()})
	}
	return errors.Join(err, a.closeResources())
}

func (a *Application) closeResources() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.images != nil {
		errs = append(errs, a.images.Close())
	}
	if a.Profiles != nil {
		errs = append(errs, a.Profiles.Close())
	}
	return errors.Join(errs...)
}
