package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"wsd/internal/providers"
	"wsd/internal/structures"
	"wsd/internal/upstream"
)

var (
	ErrTransport          = errors.New("failed to perform request")
	ErrMalformed          = errors.New("failed to parse geocoder response")
	ErrNoResults          = errors.New("no results found")
	ErrMissingName        = errors.New("no formatted location found")
	ErrMissingCoordinates = errors.New("no lat/long data found")
	ErrEmptyQuery         = errors.New("empty location query")
)

// ResolvedLocation is the first geocoder match for a free-text query.
type ResolvedLocation struct {
	DisplayName string  `json:"name"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
}

// LatLong renders the coordinates the way they are kept in the identity
// store and sent to the weather provider.
func (l ResolvedLocation) LatLong() string {
	return fmt.Sprintf("%f,%f", l.Latitude, l.Longitude)
}

// ParseLatLong reads back a "lat,lng" pair produced by LatLong.
func ParseLatLong(s string) (float64, float64, error) {
	lat, lng, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid lat,long %q", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", lat, err)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", lng, err)
	}
	return la, lo, nil
}

type ResolverInterface interface {
	Resolve(ctx context.Context, text string) (ResolvedLocation, error)
}

type Resolver struct {
	baseURL  string
	key      string
	language string
	fetcher  upstream.Fetcher
	cache    providers.CacheProviderInterface
}

func NewResolver(conf *structures.Config, fetcher upstream.Fetcher, cache providers.CacheProviderInterface) *Resolver {
	lang := conf.Geocoder.Language
	if lang == "" {
		lang = "en"
	}
	return &Resolver{
		baseURL:  conf.Geocoder.URL,
		key:      conf.Geocoder.Key,
		language: lang,
		fetcher:  fetcher,
		cache:    cache,
	}
}

type geometry struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type result struct {
	Formatted *string   `json:"formatted"`
	Geometry  *geometry `json:"geometry"`
}

type response struct {
	Results *[]result `json:"results"`
}

// normalize trims the query and collapses inner whitespace to single spaces;
// query encoding then turns each space into the provider-safe "+".
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (r *Resolver) queryURL(q string) string {
	values := url.Values{}
	values.Set("q", q)
	values.Set("key", r.key)
	values.Set("language", r.language)
	return r.baseURL + "?" + values.Encode()
}

// Resolve turns free text into the first matching place and its coordinates.
// Failures wrap one of the package sentinels.
func (r *Resolver) Resolve(ctx context.Context, text string) (ResolvedLocation, error) {
	q := normalize(text)
	if q == "" {
		return ResolvedLocation{}, ErrEmptyQuery
	}

	cacheKey := "geo:" + strings.ToLower(q)
	if data, ok := r.cache.Get(cacheKey); ok {
		var loc ResolvedLocation
		if err := json.Unmarshal(data, &loc); err == nil {
			return loc, nil
		}
	}

	body, err := r.fetcher.Get(ctx, r.queryURL(q))
	if err != nil {
		return ResolvedLocation{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	loc, err := parse(body)
	if err != nil {
		return ResolvedLocation{}, err
	}

	if data, err := json.Marshal(loc); err == nil {
		r.cache.Set(cacheKey, data)
	}
	return loc, nil
}

func parse(body []byte) (ResolvedLocation, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return ResolvedLocation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.Results == nil || len(*resp.Results) == 0 {
		return ResolvedLocation{}, ErrNoResults
	}

	first := (*resp.Results)[0]
	if first.Formatted == nil || *first.Formatted == "" {
		return ResolvedLocation{}, ErrMissingName
	}
	if first.Geometry == nil || first.Geometry.Lat == nil || first.Geometry.Lng == nil {
		return ResolvedLocation{}, ErrMissingCoordinates
	}

	return ResolvedLocation{
		DisplayName: *first.Formatted,
		Latitude:    *first.Geometry.Lat,
		Longitude:   *first.Geometry.Lng,
	}, nil
}
