package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const defaultGoogleBase = "https://maps.googleapis.com/maps/api/geocode"

// Google is the Google Geocoding API provider.
type Google struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewGoogle(baseURL, apiKey string, timeout time.Duration, rps float64) *Google {
	if baseURL == "" {
		baseURL = defaultGoogleBase
	}
	return &Google{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (g *Google) Name() string { return "google" }

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		PartialMatch     bool   `json:"partial_match"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *Google) Geocode(ctx context.Context, query, locale string) ([]Candidate, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("address", query)
	q.Set("key", g.apiKey)
	if locale != "" {
		q.Set("language", locale)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google geocode status %d", resp.StatusCode)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("google geocode decode: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoMatch
	default:
		return nil, fmt.Errorf("google geocode status %q", body.Status)
	}

	out := make([]Candidate, 0, 2)
	for i, r := range body.Results {
		if i >= 2 {
			break
		}
		conf := 1.0
		if r.PartialMatch {
			conf = 0.5
		}
		out = append(out, Candidate{
			DisplayName: r.FormattedAddress,
			Lat:         r.Geometry.Location.Lat,
			Lng:         r.Geometry.Location.Lng,
			Confidence:  conf,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}
