package fx

import (
	"mcsr-tracker/internal/api"
	"mcsr-tracker/internal/cache"
	"mcsr-tracker/internal/config"
	"mcsr-tracker/internal/logger"
	"mcsr-tracker/internal/repository"
	"mcsr-tracker/internal/server"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideStore(cfg *config.Config, log zerolog.Logger) *cache.Store {
	return cache.NewStore(cfg.CacheDir, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	// storage
	fx.Provide(ProvideStore),
	// api client
	fx.Provide(api.NewMCSRClient),
	// repos
	fx.Provide(repository.NewManager),
	// server
	fx.Provide(server.NewTrackerServer),
)
