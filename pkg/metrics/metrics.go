package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed counts pipeline outcomes per message:
	// processed, failed, skipped (dedup hit).
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parser_messages_processed_total",
		Help: "Messages handled by the ingestion pipeline, by outcome.",
	}, []string{"outcome"})

	// LocationsExtracted counts location mentions by resolution status.
	LocationsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parser_locations_total",
		Help: "Location mentions persisted, by resolution status.",
	}, []string{"status"})

	// DangerExtracted counts danger mentions by confidence tier.
	DangerExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parser_danger_mentions_total",
		Help: "Danger mentions persisted, by tier.",
	}, []string{"tier"})

	// GeocodeRequests counts provider calls by provider name and outcome:
	// resolved, ambiguous, no_match, error.
	GeocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parser_geocode_requests_total",
		Help: "Geocoding provider calls, by provider and outcome.",
	}, []string{"provider", "outcome"})

	// GeocodeCacheHits counts resolver cache hits.
	GeocodeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parser_geocode_cache_hits_total",
		Help: "Geocode resolutions served from the cache.",
	})

	// ListenerReconnects counts transport recoveries per channel.
	ListenerReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parser_listener_reconnects_total",
		Help: "Listener reconnect attempts after transport errors.",
	}, []string{"channel"})

	// QueueDepth tracks the number of raw messages waiting for a worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parser_queue_depth",
		Help: "Raw messages buffered between listeners and workers.",
	})
)
