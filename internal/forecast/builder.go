package forecast

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"wsd/internal/structures"
	"wsd/internal/upstream"
)

const (
	MaxCurrentBytes  = 7000
	MaxForecastBytes = 7000

	currentOutlookDays = 3
	maxNameBytes       = 256

	defaultZoneName    = "EST"
	defaultOffsetHours = -5
)

var (
	ErrTransport      = errors.New("failed to fetch weather data")
	ErrMalformed      = errors.New("failed to parse weather data")
	ErrMissingSection = errors.New("weather data is incomplete")
)

type Mode int

const (
	Current Mode = iota
	Forecast
)

func (m Mode) String() string {
	if m == Forecast {
		return "forecast"
	}
	return "current"
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// WeatherReport is a rendered report split into its display parts.
type WeatherReport struct {
	Headline      string
	CurrentLine   string
	ForecastLines []string
}

func (r WeatherReport) String() string {
	var b strings.Builder
	b.WriteString(r.Headline)
	b.WriteString(r.CurrentLine)
	for _, l := range r.ForecastLines {
		b.WriteString(l)
	}
	return b.String()
}

type BuilderInterface interface {
	Build(ctx context.Context, displayName string, at Coordinates, mode Mode) (WeatherReport, error)
}

type Builder struct {
	baseURL string
	key     string
	fetcher upstream.Fetcher
	zone    *time.Location
	now     func() time.Time
}

func NewBuilder(conf *structures.Config, fetcher upstream.Fetcher) *Builder {
	name, offset := conf.Display.ZoneName, conf.Display.OffsetHours
	if name == "" {
		name, offset = defaultZoneName, defaultOffsetHours
	}
	return &Builder{
		baseURL: strings.TrimRight(conf.Weather.URL, "/"),
		key:     conf.Weather.Key,
		fetcher: fetcher,
		zone:    time.FixedZone(name, offset*3600),
		now:     time.Now,
	}
}

type currently struct {
	Summary             *string  `json:"summary"`
	Temperature         *float64 `json:"temperature"`
	ApparentTemperature *float64 `json:"apparentTemperature"`
	Humidity            *float64 `json:"humidity"`
	WindSpeed           *float64 `json:"windSpeed"`
	WindBearing         *float64 `json:"windBearing"`
	WindGust            *float64 `json:"windGust"`
	DewPoint            *float64 `json:"dewPoint"`
	UVIndex             *float64 `json:"uvIndex"`
}

type day struct {
	Time            *int64   `json:"time"`
	Summary         *string  `json:"summary"`
	TemperatureHigh *float64 `json:"temperatureHigh"`
	TemperatureLow  *float64 `json:"temperatureLow"`
	SunriseTime     *int64   `json:"sunriseTime"`
	SunsetTime      *int64   `json:"sunsetTime"`
}

type daily struct {
	Data *[]day `json:"data"`
}

type payload struct {
	Currently *currently `json:"currently"`
	Daily     *daily     `json:"daily"`
}

func (b *Builder) requestURL(at Coordinates) string {
	return fmt.Sprintf("%s/%s/%f,%f", b.baseURL, url.PathEscape(b.key), at.Latitude, at.Longitude)
}

// Build fetches conditions for the coordinates and renders them under
// displayName. Fields missing from the provider payload are left out of the
// report rather than shown as zero.
func (b *Builder) Build(ctx context.Context, displayName string, at Coordinates, mode Mode) (WeatherReport, error) {
	body, err := b.fetcher.Get(ctx, b.requestURL(at))
	if err != nil {
		return WeatherReport{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return WeatherReport{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if p.Daily == nil || p.Daily.Data == nil {
		return WeatherReport{}, fmt.Errorf("%w: missing daily.data", ErrMissingSection)
	}
	if mode == Current && p.Currently == nil {
		return WeatherReport{}, fmt.Errorf("%w: missing currently", ErrMissingSection)
	}

	displayName = truncateName(displayName)
	days := *p.Daily.Data
	if mode == Forecast {
		return b.renderForecast(displayName, days), nil
	}
	return b.renderCurrent(displayName, p.Currently, days), nil
}

func (b *Builder) renderCurrent(name string, c *currently, days []day) WeatherReport {
	out := newBoundedBuilder(MaxCurrentBytes)
	report := WeatherReport{Headline: fmt.Sprintf("\x02%s\x02 :: ", name)}
	out.add(report.Headline)

	// Pieces that do not fit are skipped; smaller ones after them may still.
	line := newBoundedBuilder(MaxCurrentBytes - out.size())
	if c.Summary != nil && *c.Summary != "" {
		line.add(*c.Summary)
	}
	if c.Temperature != nil {
		temp := FormatTemp(Pair, *c.Temperature)
		if line.size() > 0 {
			temp = " " + temp
		}
		line.add(temp)
	}
	for _, piece := range b.currentDetails(c, days) {
		line.add(piece)
	}
	report.CurrentLine = line.String()
	out.add(report.CurrentLine)

	report.ForecastLines = b.outlook(days, Current, out)
	return report
}

func (b *Builder) renderForecast(name string, days []day) WeatherReport {
	out := newBoundedBuilder(MaxForecastBytes)
	report := WeatherReport{Headline: fmt.Sprintf("\x02%s\x02 :: Forecast", name)}
	out.add(report.Headline)
	report.ForecastLines = b.outlook(days, Forecast, out)
	return report
}

// currentDetails renders the " | "-separated fields that follow the summary
// and temperature.
func (b *Builder) currentDetails(c *currently, days []day) []string {
	var pieces []string
	if c.ApparentTemperature != nil {
		pieces = append(pieces, " | \x02Feels Like\x02: "+FormatTemp(Pair, *c.ApparentTemperature))
	}
	if c.Humidity != nil {
		pieces = append(pieces, fmt.Sprintf(" | \x02Humidity\x02: %.0f%%", *c.Humidity*100))
	}
	if c.WindSpeed != nil {
		wind := fmt.Sprintf(" | \x02Wind\x02: %.1fmph/%.1fkm/h", *c.WindSpeed, MphToKmh(*c.WindSpeed))
		if c.WindBearing != nil {
			wind += " " + WindDirection(*c.WindBearing)
		}
		if c.WindGust != nil {
			wind += fmt.Sprintf(" \x02Gust\x02: %.1fmph/%.1fkm/h", *c.WindGust, MphToKmh(*c.WindGust))
		}
		pieces = append(pieces, wind)
	}
	if c.DewPoint != nil {
		pieces = append(pieces, fmt.Sprintf(" | \x02Dew\x02: %.0f°", *c.DewPoint))
	}
	if c.UVIndex != nil {
		risk, color := UVRisk(*c.UVIndex)
		pieces = append(pieces, fmt.Sprintf(" | \x02UV Index\x02: %.1f \x02Risk\x02: \x03%s%s\x0f", *c.UVIndex, color, risk))
	}

	if len(days) > 0 {
		if sun := b.sunTimes(days[0]); sun != "" {
			pieces = append(pieces, sun)
		}
	}
	return pieces
}

func (b *Builder) clock(unix int64) string {
	return time.Unix(unix, 0).In(b.zone).Format("03:04 PM MST")
}

func (b *Builder) sunTimes(d day) string {
	var parts []string
	if d.SunriseTime != nil {
		parts = append(parts, "\x02Sunrise\x02: "+b.clock(*d.SunriseTime))
	}
	if d.SunsetTime != nil {
		parts = append(parts, "\x02Sunset\x02: "+b.clock(*d.SunsetTime))
	}
	if len(parts) == 0 {
		return ""
	}
	return " | " + strings.Join(parts, " ")
}

// outlook renders the daily entries after today. Entry dates are taken in
// UTC, today is taken in the display zone.
func (b *Builder) outlook(days []day, mode Mode, out *boundedBuilder) []string {
	today := b.now().In(b.zone).Format(time.DateOnly)
	layout := "Mon"
	if mode == Forecast {
		layout = "Monday"
	}

	var lines []string
	for _, d := range days {
		if mode == Current && len(lines) >= currentOutlookDays {
			break
		}
		if d.Time == nil {
			continue
		}
		date := time.Unix(*d.Time, 0).UTC()
		if date.Format(time.DateOnly) == today {
			continue
		}

		line := b.entry(date.Format(layout), d)
		if !out.add(line) {
			break
		}
		lines = append(lines, line)
	}
	return lines
}

func (b *Builder) entry(weekday string, d day) string {
	parts := make([]string, 0, 3)
	if d.Summary != nil && *d.Summary != "" {
		parts = append(parts, *d.Summary)
	}
	if d.TemperatureLow != nil {
		parts = append(parts, FormatTemp(Low, *d.TemperatureLow))
	}
	if d.TemperatureHigh != nil {
		parts = append(parts, FormatTemp(High, *d.TemperatureHigh))
	}
	return fmt.Sprintf(" | \x02%s\x02: %s", weekday, strings.Join(parts, " "))
}

func truncateName(name string) string {
	if len(name) <= maxNameBytes {
		return name
	}
	return strings.ToValidUTF8(name[:maxNameBytes], "")
}

// boundedBuilder accumulates whole pieces up to a byte cap.
type boundedBuilder struct {
	b     strings.Builder
	limit int
}

func newBoundedBuilder(limit int) *boundedBuilder {
	return &boundedBuilder{limit: limit}
}

// add appends s unless doing so would exceed the cap.
func (bb *boundedBuilder) add(s string) bool {
	if bb.b.Len()+len(s) > bb.limit {
		return false
	}
	bb.b.WriteString(s)
	return true
}

func (bb *boundedBuilder) size() int {
	return bb.b.Len()
}

func (bb *boundedBuilder) String() string {
	return bb.b.String()
}
