package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bbqapp-core/internal/geo"
)

// HTTPGeocoderOptions configures an HTTPGeocoder.
type HTTPGeocoderOptions struct {
	Timeout   time.Duration
	UserAgent string
}

func DefaultHTTPGeocoderOptions() HTTPGeocoderOptions {
	return HTTPGeocoderOptions{
		Timeout:   7 * time.Second,
		UserAgent: "bbqapp-core",
	}
}

// HTTPGeocoder is a Geocoder backed by a Nominatim-style HTTP API.
type HTTPGeocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewHTTPGeocoder(baseURL string, options ...HTTPGeocoderOptions) *HTTPGeocoder {
	opts := DefaultHTTPGeocoderOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &HTTPGeocoder{
		baseURL:    baseURL,
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type geocodeResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (g *HTTPGeocoder) FromQuery(ctx context.Context, query string, max int) ([]geo.Address, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(max))

	var results []geocodeResult
	if err := g.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}
	return convertResults(results, max), nil
}

func (g *HTTPGeocoder) FromPoint(ctx context.Context, pt geo.Point, max int) ([]geo.Address, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(pt.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(pt.Lon, 'f', -1, 64))

	var result geocodeResult
	if err := g.get(ctx, "/reverse", params, &result); err != nil {
		return nil, err
	}
	if result.DisplayName == "" {
		return nil, nil
	}
	return convertResults([]geocodeResult{result}, max), nil
}

func (g *HTTPGeocoder) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL, err := url.Parse(g.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func convertResults(results []geocodeResult, max int) []geo.Address {
	if len(results) > max {
		results = results[:max]
	}

	addresses := make([]geo.Address, 0, len(results))
	for _, result := range results {
		address := geo.Address{Lines: strings.Split(result.DisplayName, ", ")}
		lat, latErr := strconv.ParseFloat(result.Lat, 64)
		lon, lonErr := strconv.ParseFloat(result.Lon, 64)
		if latErr == nil && lonErr == nil {
			address.Point = &geo.Point{Lat: lat, Lon: lon}
		}
		addresses = append(addresses, address)
	}
	return addresses
}

var _ Geocoder = (*HTTPGeocoder)(nil)
