package controllers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"wsd/internal/forecast"
	"wsd/internal/geocode"
	"wsd/internal/providers"
	"wsd/internal/ratelimit"
	"wsd/internal/registry"
	"wsd/internal/services"
)

const (
	maxRequestBodySize = 1 << 16 // 64 KB
	requestTimeout     = 30 * time.Second

	identityHeader = "X-Identity"
	tokenHeader    = "X-Admin-Token"
	gatewayHeader  = "X-Gateway-Token"
)

type ApiController struct {
	logger   providers.Logger
	service  services.WeatherServiceInterface
	access   providers.AccessProviderInterface
	validate *validator.Validate
}

type commandResponse struct {
	Lines []string `json:"lines,omitempty"`
	Error string   `json:"error,omitempty"`
}

type channelsResponse struct {
	Channels []registry.ChannelEntry `json:"channels"`
}

type locationPayload struct {
	User     string `json:"u" validate:"max=255"`
	Location string `json:"location" validate:"required,max=512"`
}

type optionPayload struct {
	User   string `json:"u" validate:"max=255"`
	Option string `json:"option" validate:"required,max=16"`
}

type limitPayload struct {
	Limit string `json:"limit" validate:"required,max=16"`
}

type joinPayload struct {
	User    string `json:"u" validate:"max=255"`
	Channel string `json:"channel" validate:"required,max=4095"`
}

type messagePayload struct {
	User string `json:"u" validate:"max=255"`
	Text string `json:"text" validate:"required,max=512"`
}

func NewApiController(logger providers.Logger, service services.WeatherServiceInterface, access providers.AccessProviderInterface) *ApiController {
	return &ApiController{
		logger:   logger,
		service:  service,
		access:   access,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// identityOf returns the caller's identity: the X-Identity header, then the
// payload field, then the "u" query parameter. Identities are only taken from
// the trusted gateway; anyone else is anonymous.
func (ac *ApiController) identityOf(r *http.Request, fromBody string) string {
	if !ac.access.TrustsGateway(r.Header.Get(gatewayHeader)) {
		return ""
	}
	if id := strings.TrimSpace(r.Header.Get(identityHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("u"))
}

// callerKey is the rate limit key for a request: the identity when given,
// the client address otherwise.
func callerKey(r *http.Request, identity string) string {
	if identity != "" {
		return identity
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (ac *ApiController) isAdmin(r *http.Request) bool {
	return ac.access.IsAdmin(r.Header.Get(tokenHeader))
}

func (ac *ApiController) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		ac.writeJSON(w, http.StatusBadRequest, commandResponse{Error: "Bad Request"})
		return false
	}
	if err := ac.validate.Struct(payload); err != nil {
		ac.writeJSON(w, http.StatusBadRequest, commandResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Bad Request"
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return "Missing field: " + strings.ToLower(fe.Field())
	}
	return "Invalid field: " + strings.ToLower(fe.Field())
}

func (ac *ApiController) writeJSON(w http.ResponseWriter, status int, body any) {
	gson, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func (ac *ApiController) writeLines(w http.ResponseWriter, lines ...string) {
	ac.writeJSON(w, http.StatusOK, commandResponse{Lines: lines})
}

// statusFor maps a command error onto an HTTP status and the message shown to
// the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, ratelimit.SlowDownMessage
	case errors.Is(err, services.ErrBusy):
		return http.StatusServiceUnavailable, "Too many weather requests in flight, try again shortly."
	case errors.Is(err, geocode.ErrTransport), errors.Is(err, forecast.ErrTransport):
		return http.StatusBadGateway, "Error: " + err.Error()
	case errors.Is(err, geocode.ErrMalformed),
		errors.Is(err, geocode.ErrNoResults),
		errors.Is(err, geocode.ErrMissingName),
		errors.Is(err, geocode.ErrMissingCoordinates),
		errors.Is(err, forecast.ErrMalformed),
		errors.Is(err, forecast.ErrMissingSection):
		return http.StatusUnprocessableEntity, "Error: " + err.Error()
	case errors.Is(err, services.ErrNoLocation):
		return http.StatusBadRequest, "No location was requested or use SETWEATHER to set default location."
	case errors.Is(err, services.ErrIdentityRequired):
		return http.StatusBadRequest, "You need to be identified to use this command."
	case errors.Is(err, services.ErrUsage):
		return http.StatusBadRequest, "Usage" + strings.TrimPrefix(err.Error(), services.ErrUsage.Error())
	case errors.Is(err, ratelimit.ErrInvalidLimit),
		errors.Is(err, registry.ErrInvalidChannel),
		errors.Is(err, registry.ErrInvalidRequest),
		errors.Is(err, geocode.ErrEmptyQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, registry.ErrPersistence):
		return http.StatusInternalServerError, "Channel could not be saved"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// fail writes err with any lines the command produced before failing.
func (ac *ApiController) fail(w http.ResponseWriter, r *http.Request, err error, lines ...string) {
	status, msg := statusFor(err)
	logType := providers.GetLogTypeByRequestType(r.Method)
	if status >= http.StatusInternalServerError {
		ac.logger.Errorf(logType, "%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		ac.logger.Debugf(logType, "%s %s: %v", r.Method, r.URL.Path, err)
	}
	ac.writeJSON(w, status, commandResponse{Lines: lines, Error: msg})
}

func (ac *ApiController) forbidden(w http.ResponseWriter, r *http.Request) {
	ac.logger.Warnf(providers.GetLogTypeByRequestType(r.Method), "%s %s: access denied for %s", r.Method, r.URL.Path, r.RemoteAddr)
	ac.writeJSON(w, http.StatusForbidden, commandResponse{Error: "You are not authorized to perform this operation."})
}

func withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

func (ac *ApiController) report(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, identity, text string) (string, error)) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := run(ctx, callerKey(r, ac.identityOf(r, "")), r.URL.Query().Get("q"))
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.writeLines(w, out)
}

func (ac *ApiController) Weather(w http.ResponseWriter, r *http.Request) {
	ac.report(w, r, ac.service.Weather)
}

func (ac *ApiController) Forecast(w http.ResponseWriter, r *http.Request) {
	ac.report(w, r, ac.service.Forecast)
}

func (ac *ApiController) SetWeather(w http.ResponseWriter, r *http.Request) {
	var payload locationPayload
	if !ac.decode(w, r, &payload) {
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, err := ac.service.SetWeather(ctx, ac.identityOf(r, payload.User), payload.Location)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.writeLines(w, out)
}

func (ac *ApiController) setOption(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, identity, option string) (string, error)) {
	var payload optionPayload
	if !ac.decode(w, r, &payload) {
		return
	}
	out, err := run(r.Context(), ac.identityOf(r, payload.User), payload.Option)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.writeLines(w, out)
}

func (ac *ApiController) SetGreet(w http.ResponseWriter, r *http.Request) {
	ac.setOption(w, r, ac.service.SetGreet)
}

func (ac *ApiController) SetColors(w http.ResponseWriter, r *http.Request) {
	ac.setOption(w, r, ac.service.SetColors)
}

func (ac *ApiController) SetRateLimit(w http.ResponseWriter, r *http.Request) {
	if !ac.isAdmin(r) {
		ac.forbidden(w, r)
		return
	}
	var payload limitPayload
	if !ac.decode(w, r, &payload) {
		return
	}
	out, err := ac.service.SetRateLimit(payload.Limit)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.writeLines(w, out)
}

func (ac *ApiController) Join(w http.ResponseWriter, r *http.Request) {
	var payload joinPayload
	if !ac.decode(w, r, &payload) {
		return
	}
	requester := ac.identityOf(r, payload.User)
	if !ac.access.CanJoin(requester, r.Header.Get(tokenHeader), payload.Channel) {
		ac.forbidden(w, r)
		return
	}
	if requester == "" {
		requester = "admin"
	}

	out, err := ac.service.Join(payload.Channel, requester)
	if err != nil {
		if out != "" {
			ac.fail(w, r, err, out)
			return
		}
		ac.fail(w, r, err)
		return
	}
	ac.writeLines(w, out)
}

func (ac *ApiController) Cycle(w http.ResponseWriter, r *http.Request) {
	if !ac.isAdmin(r) {
		ac.forbidden(w, r)
		return
	}
	out, err := ac.service.Cycle()
	if err != nil {
		ac.fail(w, r, err, out)
		return
	}
	ac.writeLines(w, out)
}

func (ac *ApiController) Info(w http.ResponseWriter, r *http.Request) {
	lines, err := ac.service.Info(r.Context(), ac.identityOf(r, ""))
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.writeLines(w, lines...)
}

func (ac *ApiController) Channels(w http.ResponseWriter, r *http.Request) {
	if !ac.isAdmin(r) {
		ac.forbidden(w, r)
		return
	}
	ac.writeJSON(w, http.StatusOK, channelsResponse{Channels: ac.service.Channels()})
}

func (ac *ApiController) Help(w http.ResponseWriter, r *http.Request) {
	ac.writeLines(w, ac.service.Help(ac.isAdmin(r))...)
}

// Message answers a channel line. Lines that are not weather triggers get an
// empty 204.
func (ac *ApiController) Message(w http.ResponseWriter, r *http.Request) {
	var payload messagePayload
	if !ac.decode(w, r, &payload) {
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, handled, err := ac.service.ChannelMessage(ctx, callerKey(r, ac.identityOf(r, payload.User)), payload.Text)
	if !handled {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.writeLines(w, out)
}

// Identify returns the greeting report for an identity that just logged in,
// or 204 when no greeting is due.
func (ac *ApiController) Identify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	out, ok, err := ac.service.Greet(ctx, ac.identityOf(r, ""))
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ac.writeLines(w, out)
}
