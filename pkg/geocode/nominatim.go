package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultNominatimBase = "https://nominatim.openstreetmap.org"

// userAgent identifies this client to Nominatim, as its usage policy
// requires.
const userAgent = "tg-channel-parser/0.1"

// Nominatim is the OpenStreetMap geocoding provider. Requests are
// rate-limited client-side; the public instance allows one request per
// second.
type Nominatim struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewNominatim creates the provider. baseURL may be empty to use the public
// instance; tests point it at a local server.
func NewNominatim(baseURL string, timeout time.Duration, rps float64) *Nominatim {
	if baseURL == "" {
		baseURL = defaultNominatimBase
	}
	return &Nominatim{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (n *Nominatim) Name() string { return "osm" }

type nominatimResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (n *Nominatim) Geocode(ctx context.Context, query, locale string) ([]Candidate, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("q", query)
	q.Set("limit", "2")
	if locale != "" {
		q.Set("accept-language", locale)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoMatch
	}

	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		out = append(out, Candidate{
			DisplayName: r.DisplayName,
			Lat:         lat,
			Lng:         lng,
			Confidence:  r.Importance,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}
