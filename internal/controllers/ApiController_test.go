package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsd/internal/forecast"
	"wsd/internal/geocode"
	"wsd/internal/providers"
	"wsd/internal/ratelimit"
	"wsd/internal/registry"
	"wsd/internal/services"
	"wsd/internal/structures"
	"wsd/internal/testutil"
)

// --- local mocks (scoped to controller tests) ---

type call struct {
	identity string
	arg      string
}

type mockService struct {
	limiter  *ratelimit.Limiter
	out      string
	lines    []string
	handled  bool
	greetOK  bool
	err      error
	calls    map[string][]call
	channels []registry.ChannelEntry
}

func newMockService() *mockService {
	return &mockService{out: "ok", handled: true, calls: make(map[string][]call)}
}

func (m *mockService) record(name, identity, arg string) {
	m.calls[name] = append(m.calls[name], call{identity: identity, arg: arg})
}

func (m *mockService) Weather(_ context.Context, identity, text string) (string, error) {
	m.record("weather", identity, text)
	if m.limiter != nil && !m.limiter.Check(identity) {
		return "", ratelimit.ErrRateLimited
	}
	return m.out, m.err
}
func (m *mockService) Forecast(_ context.Context, identity, text string) (string, error) {
	m.record("forecast", identity, text)
	return m.out, m.err
}
func (m *mockService) SetWeather(_ context.Context, identity, text string) (string, error) {
	m.record("setweather", identity, text)
	return m.out, m.err
}
func (m *mockService) SetGreet(_ context.Context, identity, option string) (string, error) {
	m.record("setgreet", identity, option)
	return m.out, m.err
}
func (m *mockService) SetColors(_ context.Context, identity, option string) (string, error) {
	m.record("setcolors", identity, option)
	return m.out, m.err
}
func (m *mockService) SetRateLimit(raw string) (string, error) {
	m.record("setratelimit", "", raw)
	return m.out, m.err
}
func (m *mockService) Info(_ context.Context, identity string) ([]string, error) {
	m.record("info", identity, "")
	return m.lines, m.err
}
func (m *mockService) Greet(_ context.Context, identity string) (string, bool, error) {
	m.record("greet", identity, "")
	return m.out, m.greetOK, m.err
}
func (m *mockService) ChannelMessage(_ context.Context, identity, text string) (string, bool, error) {
	m.record("message", identity, text)
	return m.out, m.handled, m.err
}
func (m *mockService) Join(channel, requester string) (string, error) {
	m.record("join", requester, channel)
	return m.out, m.err
}
func (m *mockService) Cycle() (string, error) {
	m.record("cycle", "", "")
	return m.out, m.err
}
func (m *mockService) Channels() []registry.ChannelEntry { return m.channels }
func (m *mockService) Help(admin bool) []string {
	if admin {
		return []string{"user", "admin"}
	}
	return []string{"user"}
}

// --- helpers ---

const (
	adminToken   = "s3cret"
	gatewayToken = "relay"
)

func newTestController(svc *mockService) *ApiController {
	conf := &structures.Config{Access: structures.AccessConfig{
		AdminToken:   adminToken,
		GatewayToken: gatewayToken,
		ChannelACL:   map[string][]string{"#weather": {"Alice"}},
	}}
	return NewApiController(&testutil.MockLogger{}, svc, providers.NewAccessProvider(conf))
}

// viaGateway marks req as relayed by the chat gateway, optionally asserting
// identity in the header.
func viaGateway(req *http.Request, identity string) *http.Request {
	req.Header.Set("X-Gateway-Token", gatewayToken)
	if identity != "" {
		req.Header.Set("X-Identity", identity)
	}
	return req
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) commandResponse {
	t.Helper()
	var resp commandResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func post(path, body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
}

// --- query commands ---

func TestWeather_UsesHeaderIdentityAndQuery(t *testing.T) {
	svc := newMockService()
	svc.out = "\x02Berlin\x02 :: Clear"
	ac := newTestController(svc)

	req := viaGateway(httptest.NewRequest(http.MethodGet, "/weather?q=Berlin", nil), "alice")
	rr := httptest.NewRecorder()
	ac.Weather(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, []string{"\x02Berlin\x02 :: Clear"}, decodeResponse(t, rr).Lines)
	require.Len(t, svc.calls["weather"], 1)
	assert.Equal(t, call{identity: "alice", arg: "Berlin"}, svc.calls["weather"][0])
}

func TestForecast_AnonymousCallerKeyedByAddress(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	req := httptest.NewRequest(http.MethodGet, "/forecast?q=Oslo", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	rr := httptest.NewRecorder()
	ac.Forecast(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.calls["forecast"], 1)
	assert.Equal(t, "ip:192.0.2.7", svc.calls["forecast"][0].identity)
}

func TestWeather_QueryParamIdentity(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	req := viaGateway(httptest.NewRequest(http.MethodGet, "/weather?u=bob", nil), "")
	rr := httptest.NewRecorder()
	ac.Weather(rr, req)

	require.Len(t, svc.calls["weather"], 1)
	assert.Equal(t, "bob", svc.calls["weather"][0].identity)
}

func TestWeather_UntrustedIdentityKeyedByAddress(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	for _, token := range []string{"", "wrong", adminToken} {
		req := httptest.NewRequest(http.MethodGet, "/weather?q=x&u=carol", nil)
		req.RemoteAddr = "198.51.100.9:5000"
		req.Header.Set("X-Identity", "alice")
		if token != "" {
			req.Header.Set("X-Gateway-Token", token)
		}
		ac.Weather(httptest.NewRecorder(), req)
	}

	require.Len(t, svc.calls["weather"], 3)
	for _, c := range svc.calls["weather"] {
		assert.Equal(t, "ip:198.51.100.9", c.identity)
	}
}

func TestWeather_RotatingIdentitiesShareOneLimit(t *testing.T) {
	svc := newMockService()
	svc.limiter = ratelimit.New(2, 100, 0)
	ac := newTestController(svc)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/weather?q=x", nil)
		req.RemoteAddr = "198.51.100.9:5000"
		req.Header.Set("X-Identity", fmt.Sprintf("nick%d", i))
		rr := httptest.NewRecorder()
		ac.Weather(rr, req)
		codes = append(codes, rr.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"rate limited", ratelimit.ErrRateLimited, http.StatusTooManyRequests, ratelimit.SlowDownMessage},
		{"busy", fmt.Errorf("%w: deadline", services.ErrBusy), http.StatusServiceUnavailable, "Too many weather requests in flight, try again shortly."},
		{"geocode transport", fmt.Errorf("%w: timeout", geocode.ErrTransport), http.StatusBadGateway, "Error: failed to perform request: timeout"},
		{"weather transport", fmt.Errorf("%w: 500", forecast.ErrTransport), http.StatusBadGateway, "Error: failed to fetch weather data: 500"},
		{"no results", geocode.ErrNoResults, http.StatusUnprocessableEntity, "Error: no results found"},
		{"missing section", forecast.ErrMissingSection, http.StatusUnprocessableEntity, "Error: weather data is incomplete"},
		{"no location", services.ErrNoLocation, http.StatusBadRequest, "No location was requested or use SETWEATHER to set default location."},
		{"identity required", services.ErrIdentityRequired, http.StatusBadRequest, "You need to be identified to use this command."},
		{"usage", fmt.Errorf("%w: SETGREET <ON|OFF>", services.ErrUsage), http.StatusBadRequest, "Usage: SETGREET <ON|OFF>"},
		{"invalid limit", ratelimit.ErrInvalidLimit, http.StatusBadRequest, ratelimit.ErrInvalidLimit.Error()},
		{"invalid channel", registry.ErrInvalidChannel, http.StatusBadRequest, registry.ErrInvalidChannel.Error()},
		{"persistence", fmt.Errorf("%w: disk full", registry.ErrPersistence), http.StatusInternalServerError, "Channel could not be saved"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestWeather_RateLimitedResponse(t *testing.T) {
	svc := newMockService()
	svc.err = ratelimit.ErrRateLimited
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.Weather(rr, httptest.NewRequest(http.MethodGet, "/weather?q=x", nil))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, ratelimit.SlowDownMessage, decodeResponse(t, rr).Error)
}

// --- settings commands ---

func TestSetWeather_ValidPayload(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.SetWeather(rr, viaGateway(post("/setweather", `{"u":"alice","location":"New York"}`), ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.calls["setweather"], 1)
	assert.Equal(t, call{identity: "alice", arg: "New York"}, svc.calls["setweather"][0])
}

func TestSetWeather_MissingLocation(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.SetWeather(rr, post("/setweather", `{"u":"alice"}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Missing field: location", decodeResponse(t, rr).Error)
	assert.Empty(t, svc.calls["setweather"])
}

func TestSetWeather_InvalidJSON(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.SetWeather(rr, post("/setweather", "not json"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, svc.calls["setweather"])
}

func TestSetWeather_OversizedBody(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	big := `{"location":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rr := httptest.NewRecorder()
	ac.SetWeather(rr, post("/setweather", big))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetGreet_HeaderWinsOverBody(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	req := viaGateway(post("/setgreet", `{"u":"mallory","option":"ON"}`), "alice")
	rr := httptest.NewRecorder()
	ac.SetGreet(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, call{identity: "alice", arg: "ON"}, svc.calls["setgreet"][0])
}

func TestSetGreet_UntrustedIdentityIgnored(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	req := post("/setgreet", `{"u":"mallory","option":"ON"}`)
	req.Header.Set("X-Identity", "alice")
	ac.SetGreet(httptest.NewRecorder(), req)

	require.Len(t, svc.calls["setgreet"], 1)
	assert.Empty(t, svc.calls["setgreet"][0].identity)
}

func TestSetColors_UsageError(t *testing.T) {
	svc := newMockService()
	svc.err = fmt.Errorf("%w: SETCOLORS <ON|OFF>", services.ErrUsage)
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.SetColors(rr, post("/setcolors", `{"u":"alice","option":"maybe"}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Usage: SETCOLORS <ON|OFF>", decodeResponse(t, rr).Error)
}

// --- admin commands ---

func TestSetRateLimit_RequiresAdmin(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.SetRateLimit(rr, post("/setratelimit", `{"limit":"5"}`))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, svc.calls["setratelimit"])

	req := post("/setratelimit", `{"limit":"5"}`)
	req.Header.Set("X-Admin-Token", adminToken)
	rr = httptest.NewRecorder()
	ac.SetRateLimit(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "5", svc.calls["setratelimit"][0].arg)
}

func TestCycle_RequiresAdmin(t *testing.T) {
	svc := newMockService()
	svc.out = "Cycle complete. Channels joined: 3"
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.Cycle(rr, post("/cycle", ""))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req := post("/cycle", "")
	req.Header.Set("X-Admin-Token", adminToken)
	rr = httptest.NewRecorder()
	ac.Cycle(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Cycle complete. Channels joined: 3"}, decodeResponse(t, rr).Lines)
}

func TestJoin_ChannelACL(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.Join(rr, viaGateway(post("/join", `{"u":"alice","channel":"#Weather"}`), ""))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, call{identity: "alice", arg: "#Weather"}, svc.calls["join"][0])

	rr = httptest.NewRecorder()
	ac.Join(rr, viaGateway(post("/join", `{"u":"bob","channel":"#weather"}`), ""))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Len(t, svc.calls["join"], 1)
}

func TestJoin_ForgedIdentityForbidden(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	req := post("/join", `{"channel":"#weather"}`)
	req.Header.Set("X-Identity", "alice")
	rr := httptest.NewRecorder()
	ac.Join(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = post("/join", `{"u":"alice","channel":"#weather"}`)
	req.Header.Set("X-Gateway-Token", "guess")
	rr = httptest.NewRecorder()
	ac.Join(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	assert.Empty(t, svc.calls["join"])
}

func TestJoin_AdminWithoutIdentity(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	req := post("/join", `{"channel":"#ops"}`)
	req.Header.Set("X-Admin-Token", adminToken)
	rr := httptest.NewRecorder()
	ac.Join(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin", svc.calls["join"][0].identity)
}

func TestJoin_PersistenceFailureKeepsMessage(t *testing.T) {
	svc := newMockService()
	svc.out = "Joining #ops..."
	svc.err = fmt.Errorf("%w: read-only file system", registry.ErrPersistence)
	ac := newTestController(svc)

	req := post("/join", `{"channel":"#ops"}`)
	req.Header.Set("X-Admin-Token", adminToken)
	rr := httptest.NewRecorder()
	ac.Join(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decodeResponse(t, rr)
	assert.Equal(t, []string{"Joining #ops..."}, resp.Lines)
	assert.Equal(t, "Channel could not be saved", resp.Error)
}

func TestChannels_ListsEntries(t *testing.T) {
	svc := newMockService()
	svc.channels = []registry.ChannelEntry{{Channel: "#a", Requester: "alice"}}
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.Channels(rr, httptest.NewRequest(http.MethodGet, "/channels", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	rr = httptest.NewRecorder()
	ac.Channels(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp channelsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, svc.channels, resp.Channels)
}

// --- informational commands ---

func TestInfo_ReturnsLines(t *testing.T) {
	svc := newMockService()
	svc.lines = []string{"Weather information for \x02alice:\x02", " Default location: Not set"}
	ac := newTestController(svc)

	req := viaGateway(httptest.NewRequest(http.MethodGet, "/info", nil), "alice")
	rr := httptest.NewRecorder()
	ac.Info(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, svc.lines, decodeResponse(t, rr).Lines)
	assert.Equal(t, "alice", svc.calls["info"][0].identity)
}

func TestHelp_AdminLines(t *testing.T) {
	ac := newTestController(newMockService())

	rr := httptest.NewRecorder()
	ac.Help(rr, httptest.NewRequest(http.MethodGet, "/help", nil))
	assert.Equal(t, []string{"user"}, decodeResponse(t, rr).Lines)

	req := httptest.NewRequest(http.MethodGet, "/help", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rr = httptest.NewRecorder()
	ac.Help(rr, req)
	assert.Equal(t, []string{"user"}, decodeResponse(t, rr).Lines)

	req.Header.Set("X-Admin-Token", adminToken)
	rr = httptest.NewRecorder()
	ac.Help(rr, req)
	assert.Equal(t, []string{"user", "admin"}, decodeResponse(t, rr).Lines)
}

// --- channel and identify events ---

func TestMessage_NotATrigger(t *testing.T) {
	svc := newMockService()
	svc.handled = false
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.Message(rr, post("/message", `{"u":"alice","text":"good morning"}`))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.Bytes())
}

func TestMessage_Trigger(t *testing.T) {
	svc := newMockService()
	svc.out = "\x02Paris\x02 :: Forecast"
	ac := newTestController(svc)

	rr := httptest.NewRecorder()
	ac.Message(rr, viaGateway(post("/message", `{"u":"alice","text":"!f Paris"}`), ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, call{identity: "alice", arg: "!f Paris"}, svc.calls["message"][0])
}

func TestIdentify(t *testing.T) {
	svc := newMockService()
	ac := newTestController(svc)

	req := viaGateway(post("/identify", ""), "alice")
	rr := httptest.NewRecorder()
	ac.Identify(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	svc.greetOK = true
	svc.out = "\x02Berlin\x02 :: Clear"
	rr = httptest.NewRecorder()
	ac.Identify(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"\x02Berlin\x02 :: Clear"}, decodeResponse(t, rr).Lines)
}
