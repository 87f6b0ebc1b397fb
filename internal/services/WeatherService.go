package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wsd/internal/forecast"
	"wsd/internal/geocode"
	"wsd/internal/identity"
	"wsd/internal/providers"
	"wsd/internal/ratelimit"
	"wsd/internal/registry"
	"wsd/internal/structures"
)

const (
	ServiceNick          = "Weather"
	defaultMaxConcurrent = 8
)

var (
	ErrNoLocation       = errors.New("no location requested")
	ErrUsage            = errors.New("usage")
	ErrIdentityRequired = errors.New("identity required")
	ErrBusy             = errors.New("too many weather requests in flight")
)

type WeatherServiceInterface interface {
	Weather(ctx context.Context, identity, text string) (string, error)
	Forecast(ctx context.Context, identity, text string) (string, error)
	SetWeather(ctx context.Context, identity, text string) (string, error)
	SetGreet(ctx context.Context, identity, option string) (string, error)
	SetColors(ctx context.Context, identity, option string) (string, error)
	SetRateLimit(raw string) (string, error)
	Info(ctx context.Context, identity string) ([]string, error)
	Greet(ctx context.Context, identity string) (string, bool, error)
	ChannelMessage(ctx context.Context, identity, text string) (string, bool, error)
	Join(channel, requester string) (string, error)
	Cycle() (string, error)
	Channels() []registry.ChannelEntry
	Help(admin bool) []string
}

type WeatherService struct {
	limiter  *ratelimit.Limiter
	resolver geocode.ResolverInterface
	builder  forecast.BuilderInterface
	registry registry.RegistryInterface
	store    identity.Store
	metrics  providers.MetricsProviderInterface
	logger   providers.Logger

	// slots bounds the number of requests waiting on upstream providers.
	slots chan struct{}
}

func NewWeatherService(
	conf *structures.Config,
	limiter *ratelimit.Limiter,
	resolver geocode.ResolverInterface,
	builder forecast.BuilderInterface,
	reg registry.RegistryInterface,
	store identity.Store,
	metrics providers.MetricsProviderInterface,
	logger providers.Logger,
) *WeatherService {
	n := conf.Workers.MaxConcurrent
	if n <= 0 {
		n = defaultMaxConcurrent
	}
	return &WeatherService{
		limiter:  limiter,
		resolver: resolver,
		builder:  builder,
		registry: reg,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		slots:    make(chan struct{}, n),
	}
}

func (ws *WeatherService) acquire(ctx context.Context) (func(), error) {
	select {
	case ws.slots <- struct{}{}:
		return func() { <-ws.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
	}
}

func (ws *WeatherService) observe(command string, err error) {
	switch {
	case err == nil:
		ws.metrics.IncCommand(command, "ok")
	case errors.Is(err, ratelimit.ErrRateLimited):
		ws.metrics.IncCommand(command, "rate_limited")
	default:
		ws.metrics.IncCommand(command, "error")
	}
}

func (ws *WeatherService) checkRate(identity string) error {
	if ws.limiter.Check(identity) {
		return nil
	}
	ws.metrics.IncRateLimited()
	ws.logger.Debugf(providers.TypeApp, "Rate limited %s", identity)
	return ratelimit.ErrRateLimited
}

func (ws *WeatherService) Weather(ctx context.Context, identity, text string) (string, error) {
	out, err := ws.report(ctx, identity, text, forecast.Current)
	ws.observe("weather", err)
	return out, err
}

func (ws *WeatherService) Forecast(ctx context.Context, identity, text string) (string, error) {
	out, err := ws.report(ctx, identity, text, forecast.Forecast)
	ws.observe("forecast", err)
	return out, err
}

// report runs the limiter, picks the location (query text or the stored
// default) and renders it in the caller's colour preference.
func (ws *WeatherService) report(ctx context.Context, id, text string, mode forecast.Mode) (string, error) {
	if err := ws.checkRate(id); err != nil {
		return "", err
	}

	release, err := ws.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	text = strings.TrimSpace(text)
	var loc geocode.ResolvedLocation
	if text != "" {
		loc, err = ws.resolve(ctx, text)
	} else {
		loc, err = ws.storedLocation(ctx, id)
	}
	if err != nil {
		return "", err
	}

	report, err := ws.builder.Build(ctx, loc.DisplayName, forecast.Coordinates{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}, mode)
	if err != nil {
		ws.logger.Warnf(providers.TypeUpstream, "%s report for %q failed: %v", mode, loc.DisplayName, err)
		return "", err
	}

	return ws.applyColors(ctx, id, report.String()), nil
}

func (ws *WeatherService) resolve(ctx context.Context, text string) (geocode.ResolvedLocation, error) {
	loc, err := ws.resolver.Resolve(ctx, text)
	if err != nil {
		ws.logger.Warnf(providers.TypeUpstream, "Geocoding %q failed: %v", text, err)
		return geocode.ResolvedLocation{}, err
	}
	return loc, nil
}

func (ws *WeatherService) storedLocation(ctx context.Context, id string) (geocode.ResolvedLocation, error) {
	if id == "" {
		return geocode.ResolvedLocation{}, ErrNoLocation
	}
	name, ok, err := ws.store.Get(ctx, id, identity.KeyLocation)
	if err != nil {
		return geocode.ResolvedLocation{}, fmt.Errorf("identity store: %w", err)
	}
	if !ok || name == "" {
		return geocode.ResolvedLocation{}, ErrNoLocation
	}

	latlong, ok, err := ws.store.Get(ctx, id, identity.KeyLatLong)
	if err != nil {
		return geocode.ResolvedLocation{}, fmt.Errorf("identity store: %w", err)
	}
	if ok {
		if lat, lng, err := geocode.ParseLatLong(latlong); err == nil {
			return geocode.ResolvedLocation{DisplayName: name, Latitude: lat, Longitude: lng}, nil
		}
		ws.logger.Warnf(providers.TypeApp, "Stored lat,long %q for %s is invalid, resolving %q again", latlong, id, name)
	}
	return ws.resolve(ctx, name)
}

func (ws *WeatherService) applyColors(ctx context.Context, id, text string) string {
	if id == "" {
		return text
	}
	colors, ok, err := ws.store.Get(ctx, id, identity.KeyColors)
	if err != nil {
		ws.logger.Warnf(providers.TypeApp, "Reading colour preference for %s: %v", id, err)
		return text
	}
	if ok && strings.EqualFold(colors, identity.Off) {
		return forecast.StripDisplayMarkup(text)
	}
	return text
}

func (ws *WeatherService) SetWeather(ctx context.Context, id, text string) (string, error) {
	out, err := ws.setWeather(ctx, id, text)
	ws.observe("setweather", err)
	return out, err
}

func (ws *WeatherService) setWeather(ctx context.Context, id, text string) (string, error) {
	if id == "" {
		return "", ErrIdentityRequired
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: SETWEATHER <location>", ErrUsage)
	}
	if err := ws.checkRate(id); err != nil {
		return "", err
	}

	release, err := ws.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	loc, err := ws.resolve(ctx, text)
	if err != nil {
		return "", err
	}

	if err := ws.store.Set(ctx, id, identity.KeyLocation, loc.DisplayName); err != nil {
		return "", fmt.Errorf("identity store: %w", err)
	}
	if err := ws.store.Set(ctx, id, identity.KeyLatLong, loc.LatLong()); err != nil {
		return "", fmt.Errorf("identity store: %w", err)
	}
	for _, key := range []string{identity.KeyGreet, identity.KeyColors} {
		if _, ok, err := ws.store.Get(ctx, id, key); err == nil && !ok {
			if err := ws.store.Set(ctx, id, key, identity.On); err != nil {
				return "", fmt.Errorf("identity store: %w", err)
			}
		}
	}

	return fmt.Sprintf("The following location was set \x02%s\x02", loc.DisplayName), nil
}

func parseToggle(option string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(option)) {
	case identity.On:
		return identity.On, true
	case identity.Off:
		return identity.Off, true
	default:
		return "", false
	}
}

func (ws *WeatherService) SetGreet(ctx context.Context, id, option string) (string, error) {
	out, err := ws.setGreet(ctx, id, option)
	ws.observe("setgreet", err)
	return out, err
}

func (ws *WeatherService) setGreet(ctx context.Context, id, option string) (string, error) {
	if id == "" {
		return "", ErrIdentityRequired
	}
	v, ok := parseToggle(option)
	if !ok {
		return "", fmt.Errorf("%w: SETGREET <ON|OFF>", ErrUsage)
	}
	if v == identity.On {
		if err := ws.store.Set(ctx, id, identity.KeyGreet, identity.On); err != nil {
			return "", fmt.Errorf("identity store: %w", err)
		}
		return "Weather greeting enabled.", nil
	}
	if err := ws.store.Delete(ctx, id, identity.KeyGreet); err != nil {
		return "", fmt.Errorf("identity store: %w", err)
	}
	return "Weather greeting disabled.", nil
}

func (ws *WeatherService) SetColors(ctx context.Context, id, option string) (string, error) {
	out, err := ws.setColors(ctx, id, option)
	ws.observe("setcolors", err)
	return out, err
}

func (ws *WeatherService) setColors(ctx context.Context, id, option string) (string, error) {
	if id == "" {
		return "", ErrIdentityRequired
	}
	v, ok := parseToggle(option)
	if !ok {
		return "", fmt.Errorf("%w: SETCOLORS <ON|OFF>", ErrUsage)
	}
	if err := ws.store.Set(ctx, id, identity.KeyColors, v); err != nil {
		return "", fmt.Errorf("identity store: %w", err)
	}
	if v == identity.On {
		return "Weather colors enabled.", nil
	}
	return "Weather colors disabled.", nil
}

func (ws *WeatherService) SetRateLimit(raw string) (string, error) {
	n, err := ratelimit.ParseLimit(raw, ws.limiter.MaxHits())
	if err == nil {
		err = ws.limiter.SetLimit(n)
	}
	ws.observe("setratelimit", err)
	if err != nil {
		return "", err
	}
	ws.logger.Infof(providers.TypeApp, "Global rate limit set to %d hits per minute", n)
	return fmt.Sprintf("Global rate limit is now %d hits per minute", n), nil
}

func (ws *WeatherService) Info(ctx context.Context, id string) ([]string, error) {
	if id == "" {
		return nil, ErrIdentityRequired
	}

	get := func(key string) (string, bool, error) {
		return ws.store.Get(ctx, id, key)
	}
	location, hasLocation, err := get(identity.KeyLocation)
	if err != nil {
		return nil, fmt.Errorf("identity store: %w", err)
	}
	latlong, hasLatLong, err := get(identity.KeyLatLong)
	if err != nil {
		return nil, fmt.Errorf("identity store: %w", err)
	}
	greet, _, err := get(identity.KeyGreet)
	if err != nil {
		return nil, fmt.Errorf("identity store: %w", err)
	}
	colors, hasColors, err := get(identity.KeyColors)
	if err != nil {
		return nil, fmt.Errorf("identity store: %w", err)
	}

	if !hasLocation {
		location = "Not set"
	}
	if !hasLatLong {
		latlong = "Not set"
	}
	greetSetting := "Disabled"
	if strings.EqualFold(greet, identity.On) {
		greetSetting = "Enabled"
	}
	colorSetting := "Enabled"
	if hasColors && strings.EqualFold(colors, identity.Off) {
		colorSetting = "Disabled"
	}

	ws.observe("info", nil)
	return []string{
		fmt.Sprintf("Weather information for \x02%s:\x02", id),
		" Default location: " + location,
		"Default lat, long: " + latlong,
		"    Greet setting: " + greetSetting,
		"   Colors setting: " + colorSetting,
	}, nil
}

// Greet renders the identify-time greeting. ok is false when the identity
// has greetings off or no default location.
func (ws *WeatherService) Greet(ctx context.Context, id string) (string, bool, error) {
	if id == "" {
		return "", false, nil
	}
	greet, ok, err := ws.store.Get(ctx, id, identity.KeyGreet)
	if err != nil {
		return "", false, fmt.Errorf("identity store: %w", err)
	}
	if !ok || !strings.EqualFold(greet, identity.On) {
		return "", false, nil
	}

	release, err := ws.acquire(ctx)
	if err != nil {
		return "", false, err
	}
	defer release()

	loc, err := ws.storedLocation(ctx, id)
	if errors.Is(err, ErrNoLocation) {
		return "", false, nil
	}
	if err != nil {
		ws.observe("greet", err)
		return "", false, err
	}

	report, err := ws.builder.Build(ctx, loc.DisplayName, forecast.Coordinates{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}, forecast.Current)
	ws.observe("greet", err)
	if err != nil {
		return "", false, err
	}
	return ws.applyColors(ctx, id, report.String()), true, nil
}

var channelTriggers = map[string]forecast.Mode{
	"!w":        forecast.Current,
	"!weather":  forecast.Current,
	"!f":        forecast.Forecast,
	"!forecast": forecast.Forecast,
}

// ParseTrigger splits a channel line into its trigger mode and location.
func ParseTrigger(text string) (forecast.Mode, string, bool) {
	text = strings.TrimSpace(text)
	word, rest, _ := strings.Cut(text, " ")
	mode, ok := channelTriggers[strings.ToLower(word)]
	if !ok {
		return 0, "", false
	}
	return mode, strings.TrimSpace(rest), true
}

// ChannelMessage answers a channel line. handled is false when the line is
// not a weather trigger.
func (ws *WeatherService) ChannelMessage(ctx context.Context, id, text string) (string, bool, error) {
	mode, location, ok := ParseTrigger(text)
	if !ok {
		return "", false, nil
	}
	var (
		out string
		err error
	)
	if mode == forecast.Forecast {
		out, err = ws.Forecast(ctx, id, location)
	} else {
		out, err = ws.Weather(ctx, id, location)
	}
	return out, true, err
}

func (ws *WeatherService) Join(channel, requester string) (string, error) {
	res, err := ws.registry.Join(channel, requester)
	ws.observe("join", err)
	if err != nil && !res.NewlyTracked {
		return "", err
	}
	if !res.NewlyTracked {
		return fmt.Sprintf("%s is already tracking %s.", ServiceNick, channel), nil
	}
	return fmt.Sprintf("Joining %s...", channel), err
}

func (ws *WeatherService) Cycle() (string, error) {
	n, err := ws.registry.Cycle()
	ws.observe("cycle", err)
	return fmt.Sprintf("Cycle complete. Channels joined: %d", n), err
}

func (ws *WeatherService) Channels() []registry.ChannelEntry {
	return ws.registry.Channels()
}

func (ws *WeatherService) Help(admin bool) []string {
	lines := []string{
		fmt.Sprintf("***** \x02%s Help\x02 *****", ServiceNick),
		fmt.Sprintf("\x02%s\x02 provides weather information and related commands, using", ServiceNick),
		"OpenCage and PirateWeather as sources.",
		" ",
		"The following commands are available:",
		"\x02FORECAST\x02       Fetches forecast data for a location.",
		"\x02HELP\x02           Displays contextual help information.",
		"\x02INFO\x02           Displays user-specific weather settings information.",
		fmt.Sprintf("\x02JOIN\x02           %s will join channel.", ServiceNick),
		"\x02SETCOLORS\x02      Enables or disables weather colors output.",
		"\x02SETGREET\x02       Enables or disables weather greeting on identify.",
		"\x02SETWEATHER\x02     Sets the default weather location for the user.",
	}
	if admin {
		lines = append(lines,
			"\x02SETRATELIMIT\x02   Sets the global rate limit for the service.",
			fmt.Sprintf("\x02CYCLE\x02          Forces %s to join stored channels.", ServiceNick),
		)
	}
	return append(lines,
		"\x02WEATHER\x02        Fetches weather data for a location.",
		" ",
		"\x02W\x02 and \x02F\x02 shortcuts are also available for weather and forecast.",
		"In channels use \x02!w\x02, \x02!weather\x02, \x02!f\x02 or \x02!forecast\x02.",
		" ",
		"***** \x02End of Help\x02 *****",
	)
}
