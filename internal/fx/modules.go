package fx

import (
	"encounter-tracker/internal/bridge"
	"encounter-tracker/internal/config"
	"encounter-tracker/internal/database"
	"encounter-tracker/internal/logger"
	"encounter-tracker/internal/repository"
	"encounter-tracker/internal/server"
	"encounter-tracker/internal/service"
	"encounter-tracker/internal/telemetry"

	"go.uber.org/fx"
)

func ProvideSource(feed *telemetry.Feed) telemetry.Source {
	return feed
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewEncounterRepository),
	fx.Provide(repository.NewPlayerRepository),
	// telemetry feed
	fx.Provide(telemetry.NewFeed),
	fx.Provide(ProvideSource),
	// svc
	fx.Provide(service.NewEncounterService),
	// bridge + server
	fx.Provide(bridge.New),
	fx.Provide(server.NewHistoryServer),
)
