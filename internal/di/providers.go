package di

import (
	"golang.org/x/time/rate"

	"wsd/internal/forecast"
	"wsd/internal/geocode"
	"wsd/internal/providers"
	"wsd/internal/structures"
	"wsd/internal/upstream"
)

// Each upstream provider gets its own client and circuit breaker; the rate
// budget is shared.

func provideResolver(conf *structures.Config, budget *rate.Limiter, metrics providers.MetricsProviderInterface, cache providers.CacheProviderInterface) *geocode.Resolver {
	client := upstream.NewClient("geocoder", conf.Geocoder, budget, metrics)
	return geocode.NewResolver(conf, client, cache)
}

func provideBuilder(conf *structures.Config, budget *rate.Limiter, metrics providers.MetricsProviderInterface) *forecast.Builder {
	client := upstream.NewClient("weather", conf.Weather, budget, metrics)
	return forecast.NewBuilder(conf, client)
}

func provideLogger(conf *structures.Config) (providers.Logger, func(), error) {
	logger, err := providers.NewLogProvider(conf)
	if err != nil {
		return nil, nil, err
	}
	return logger, logger.Close, nil
}
