package server

import (
	"github.com/raysh454/cleanweb/internal/app"
	"github.com/raysh454/cleanweb/internal/logging"
)

type Config struct {
	// ListenAddr overrides AppConfig.ListenAddr when set.
	ListenAddr string
	AppConfig  *app.Config
	// AppOptions injects fetchers and caches into the application, mainly
	// for tests.
	AppOptions app.Options
	Logger     logging.Logger
}
