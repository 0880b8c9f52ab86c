package geocode

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"tg-channel-parser/pkg/extract"
	"tg-channel-parser/pkg/metrics"
)

// Status is the outcome of resolving one location candidate.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
	StatusAmbiguous  Status = "ambiguous"
)

// Resolved is the result of a resolution attempt. Lat/Lng and MapURL are
// meaningful only when Status is resolved or ambiguous; for ambiguous
// results they hold the top-ranked candidate.
type Resolved struct {
	Raw         string
	Normalized  string
	Lat         float64
	Lng         float64
	DisplayName string
	Provider    string
	Status      Status
	MapURL      string
}

const (
	countryHint = "Україна"
	localeUK    = "uk"

	// inlineProvider marks results parsed from coordinate literals, which
	// never hit a geocoding service.
	inlineProvider = "inline"
)

// Resolver turns location candidates into coordinates and map URLs through
// a primary and optional secondary provider, with a process-wide TTL cache
// keyed by the candidate's normalized string. The cache is shared across
// workers; concurrent fills of the same key are last-writer-wins.
type Resolver struct {
	primary    Provider
	secondary  Provider
	cache      *ttlcache.Cache[string, Resolved]
	mapService string
	log        *zap.Logger
}

// NewResolver creates a resolver. secondary may be nil when no fallback
// provider is configured.
func NewResolver(primary, secondary Provider, mapService string, cacheTTL time.Duration, log *zap.Logger) *Resolver {
	cache := ttlcache.New[string, Resolved](
		ttlcache.WithTTL[string, Resolved](cacheTTL),
	)
	go cache.Start()
	return &Resolver{
		primary:    primary,
		secondary:  secondary,
		cache:      cache,
		mapService: mapService,
		log:        log,
	}
}

// Stop releases the cache's expiry goroutine.
func (r *Resolver) Stop() { r.cache.Stop() }

// Resolve resolves one candidate. Provider failures are absorbed: the result
// carries StatusUnresolved rather than an error, so one bad lookup never
// breaks message processing.
func (r *Resolver) Resolve(ctx context.Context, cand extract.LocationCandidate) Resolved {
	if cand.Coords != nil {
		return Resolved{
			Raw:        cand.Raw,
			Normalized: cand.Normalized,
			Lat:        cand.Coords.Lat,
			Lng:        cand.Coords.Lng,
			Provider:   inlineProvider,
			Status:     StatusResolved,
			MapURL:     BuildMapURL(r.mapService, cand.Coords.Lat, cand.Coords.Lng),
		}
	}

	if item := r.cache.Get(cand.Normalized); item != nil {
		metrics.GeocodeCacheHits.Inc()
		res := item.Value()
		res.Raw = cand.Raw
		return res
	}

	res, cacheable := r.query(ctx, cand)
	if cacheable {
		r.cache.Set(cand.Normalized, res, ttlcache.DefaultTTL)
	}
	return res
}

// query runs the primary/secondary lookup chain. The second return value is
// false when the terminal outcome was a provider failure, which must not be
// cached: the same string may well resolve once the provider recovers.
func (r *Resolver) query(ctx context.Context, cand extract.LocationCandidate) (Resolved, bool) {
	cands, err := r.lookup(ctx, r.primary, cand)
	provider := r.primary.Name()

	if err != nil && r.secondary != nil {
		r.log.Debug("primary geocoder failed, trying secondary",
			zap.String("query", cand.Normalized),
			zap.String("primary", r.primary.Name()),
			zap.Error(err))
		cands, err = r.lookup(ctx, r.secondary, cand)
		provider = r.secondary.Name()
	}

	if err != nil {
		if !errors.Is(err, ErrNoMatch) {
			r.log.Warn("geocoding failed",
				zap.String("query", cand.Normalized),
				zap.String("provider", provider),
				zap.Error(err))
		}
		return Resolved{
			Raw:        cand.Raw,
			Normalized: cand.Normalized,
			Provider:   provider,
			Status:     StatusUnresolved,
		}, errors.Is(err, ErrNoMatch)
	}

	status := StatusResolved
	if len(cands) > 1 {
		status = StatusAmbiguous
	}
	top := cands[0]
	return Resolved{
		Raw:         cand.Raw,
		Normalized:  cand.Normalized,
		Lat:         top.Lat,
		Lng:         top.Lng,
		DisplayName: top.DisplayName,
		Provider:    provider,
		Status:      status,
		MapURL:      BuildMapURL(r.mapService, top.Lat, top.Lng),
	}, true
}

// lookup queries one provider: the raw text with the country hint, then
// bare, then the transliterated (normalized) form as a last resort, since
// some indexes only carry the Latin spelling.
func (r *Resolver) lookup(ctx context.Context, p Provider, cand extract.LocationCandidate) ([]Candidate, error) {
	cands, err := p.Geocode(ctx, cand.Raw+", "+countryHint, localeUK)
	if errors.Is(err, ErrNoMatch) {
		cands, err = p.Geocode(ctx, cand.Raw, localeUK)
	}
	if errors.Is(err, ErrNoMatch) && cand.Normalized != "" && !strings.EqualFold(cand.Normalized, cand.Raw) {
		cands, err = p.Geocode(ctx, cand.Normalized, localeUK)
	}

	switch {
	case err == nil && len(cands) > 1:
		metrics.GeocodeRequests.WithLabelValues(p.Name(), "ambiguous").Inc()
	case err == nil:
		metrics.GeocodeRequests.WithLabelValues(p.Name(), "resolved").Inc()
	case errors.Is(err, ErrNoMatch):
		metrics.GeocodeRequests.WithLabelValues(p.Name(), "no_match").Inc()
	default:
		metrics.GeocodeRequests.WithLabelValues(p.Name(), "error").Inc()
	}
	return cands, err
}
