//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"wsd/internal"
	"wsd/internal/controllers"
	"wsd/internal/forecast"
	"wsd/internal/geocode"
	"wsd/internal/identity"
	"wsd/internal/messaging"
	"wsd/internal/providers"
	"wsd/internal/ratelimit"
	"wsd/internal/registry"
	"wsd/internal/scheduler"
	"wsd/internal/services"
	"wsd/internal/structures"
	"wsd/internal/upstream"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, func(), error) {

	wire.Build(
		providers.NewConfigProvider,
		provideLogger,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,
		providers.NewAccessProvider,

		ratelimit.NewLimiter,
		upstream.NewBudget,
		provideResolver,
		provideBuilder,
		messaging.NewPresence,
		registry.NewRegistry,
		identity.NewStore,
		services.NewWeatherService,
		scheduler.NewScheduler,
		controllers.NewApiController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewHandler,
		internal.NewApp,

		wire.Bind(new(registry.Joiner), new(*messaging.Presence)),
		wire.Bind(new(registry.RegistryInterface), new(*registry.Registry)),
		wire.Bind(new(providers.ChannelCounter), new(*registry.Registry)),
		wire.Bind(new(providers.RateEntryCounter), new(*ratelimit.Limiter)),
		wire.Bind(new(providers.PresenceLister), new(*messaging.Presence)),
		wire.Bind(new(geocode.ResolverInterface), new(*geocode.Resolver)),
		wire.Bind(new(forecast.BuilderInterface), new(*forecast.Builder)),
		wire.Bind(new(services.WeatherServiceInterface), new(*services.WeatherService)),
	)

	return nil, nil, nil
}
