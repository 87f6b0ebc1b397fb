package internal

import (
	"net/http"

	"wsd/internal/controllers"
	"wsd/internal/providers"
)

func InitRoutes(apiController *controllers.ApiController, logger providers.Logger) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()
	routers.Use(providers.RequestLoggerMiddleware(logger))

	routers.Get("/weather", http.HandlerFunc(apiController.Weather))
	routers.Get("/forecast", http.HandlerFunc(apiController.Forecast))
	routers.Post("/setweather", http.HandlerFunc(apiController.SetWeather))
	routers.Post("/setgreet", http.HandlerFunc(apiController.SetGreet))
	routers.Post("/setcolors", http.HandlerFunc(apiController.SetColors))
	routers.Post("/setratelimit", http.HandlerFunc(apiController.SetRateLimit))
	routers.Post("/join", http.HandlerFunc(apiController.Join))
	routers.Post("/cycle", http.HandlerFunc(apiController.Cycle))
	routers.Get("/info", http.HandlerFunc(apiController.Info))
	routers.Get("/channels", http.HandlerFunc(apiController.Channels))
	routers.Get("/help", http.HandlerFunc(apiController.Help))
	routers.Post("/message", http.HandlerFunc(apiController.Message))
	routers.Post("/identify", http.HandlerFunc(apiController.Identify))
	return routers
}
