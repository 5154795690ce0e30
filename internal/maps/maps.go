// Package maps talks to the Google Maps geocoding and directions web
// services. Distance and duration text are returned exactly as the service
// words them so they can be spoken verbatim.
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"yuzu/receptionist/internal/upstream"
)

const (
	serviceGeocode    = "geocode"
	serviceDirections = "directions"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) String() string { return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng) }

type Directions struct {
	Distance string
	Duration string
	// Steps are plain-text turn instructions, markup removed.
	Steps   []string
	MapLink string
}

type Client struct {
	http   *http.Client
	apiKey string
	base   string
}

func NewClient(apiKey, base string) *Client {
	if base == "" {
		base = "https://maps.googleapis.com/maps/api"
	}
	return &Client{
		http:   &http.Client{},
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
	}
}

// Geocode resolves free-form caller text, biased toward region.
func (c *Client) Geocode(ctx context.Context, query, region string) (LatLng, error) {
	if c.apiKey == "" {
		return LatLng{}, upstream.New(serviceGeocode, upstream.KindConfig, fmt.Errorf("missing api key"))
	}
	if strings.TrimSpace(query) == "" {
		return LatLng{}, upstream.New(serviceGeocode, upstream.KindNotFound, fmt.Errorf("empty query"))
	}
	q := url.Values{}
	q.Set("address", query)
	if region != "" {
		q.Set("region", region)
	}
	q.Set("key", c.apiKey)

	var parsed struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Results      []struct {
			Geometry struct {
				Location LatLng `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := c.get(ctx, serviceGeocode, "/geocode/json", q, &parsed); err != nil {
		return LatLng{}, err
	}
	if err := statusError(serviceGeocode, parsed.Status, parsed.ErrorMessage); err != nil {
		return LatLng{}, err
	}
	if len(parsed.Results) == 0 {
		return LatLng{}, upstream.New(serviceGeocode, upstream.KindNotFound, fmt.Errorf("no results"))
	}
	return parsed.Results[0].Geometry.Location, nil
}

// Directions returns the driving route from origin to destination.
func (c *Client) Directions(ctx context.Context, origin LatLng, destination string) (Directions, error) {
	if c.apiKey == "" {
		return Directions{}, upstream.New(serviceDirections, upstream.KindConfig, fmt.Errorf("missing api key"))
	}
	q := url.Values{}
	q.Set("origin", origin.String())
	q.Set("destination", destination)
	q.Set("mode", "driving")
	q.Set("key", c.apiKey)

	var parsed struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Routes       []struct {
			Legs []struct {
				Distance struct {
					Text string `json:"text"`
				} `json:"distance"`
				Duration struct {
					Text string `json:"text"`
				} `json:"duration"`
				Steps []struct {
					HTMLInstructions string `json:"html_instructions"`
				} `json:"steps"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := c.get(ctx, serviceDirections, "/directions/json", q, &parsed); err != nil {
		return Directions{}, err
	}
	if err := statusError(serviceDirections, parsed.Status, parsed.ErrorMessage); err != nil {
		return Directions{}, err
	}
	if len(parsed.Routes) == 0 || len(parsed.Routes[0].Legs) == 0 {
		return Directions{}, upstream.New(serviceDirections, upstream.KindNotFound, fmt.Errorf("no route"))
	}
	leg := parsed.Routes[0].Legs[0]
	out := Directions{
		Distance: leg.Distance.Text,
		Duration: leg.Duration.Text,
		MapLink:  MapLink(origin.String(), destination),
	}
	for _, s := range leg.Steps {
		if text := StripMarkup(s.HTMLInstructions); text != "" {
			out.Steps = append(out.Steps, text)
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, service, path string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return upstream.New(service, upstream.KindConfig, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return upstream.New(service, upstream.KindUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return upstream.New(service, upstream.FromStatus(resp.StatusCode), fmt.Errorf("%s: %s", resp.Status, string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return upstream.New(service, upstream.KindUnavailable, fmt.Errorf("decode: %w", err))
	}
	return nil
}

// statusError maps the service's in-body status field to a failure kind.
func statusError(service, status, msg string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return upstream.New(service, upstream.KindNotFound, fmt.Errorf("%s", status))
	case "REQUEST_DENIED":
		return upstream.New(service, upstream.KindConfig, fmt.Errorf("%s: %s", status, msg))
	case "INVALID_REQUEST", "MAX_WAYPOINTS_EXCEEDED", "MAX_ROUTE_LENGTH_EXCEEDED":
		return upstream.New(service, upstream.KindRejected, fmt.Errorf("%s: %s", status, msg))
	default:
		return upstream.New(service, upstream.KindUnavailable, fmt.Errorf("%s: %s", status, msg))
	}
}

// MapLink builds a driving-directions link a phone can open.
func MapLink(origin, destination string) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("travelmode", "driving")
	return "https://www.google.com/maps/dir/?" + q.Encode()
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
	punctRe = regexp.MustCompile(`\s+([,.;:!?])`)
)

// StripMarkup turns an HTML step instruction into speakable text. Tags
// become spaces.
func StripMarkup(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(html.UnescapeString(s), "\u00a0", " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(punctRe.ReplaceAllString(s, "$1"))
}
