// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProxyRequests counts relayed requests by kind (manifest, segment, error)
// and response status.
var ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptvdeck_proxy_requests_total",
	Help: "Stream proxy requests by kind and status",
}, []string{"kind", "status"})

// ProxyBytes counts bytes written to clients by the stream proxy.
var ProxyBytes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptvdeck_proxy_bytes_total",
	Help: "Bytes relayed by the stream proxy",
}, []string{"kind"})

// ProxyUpstreamFailures counts upstream failures by reason (timeout, status, transport).
var ProxyUpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptvdeck_proxy_upstream_failures_total",
	Help: "Upstream failures seen by the stream proxy",
}, []string{"reason"})

// ProxyUpstreamLatency observes time to upstream response headers.
var ProxyUpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "iptvdeck_proxy_upstream_latency_seconds",
	Help:    "Time until the upstream answered",
	Buckets: prometheus.DefBuckets,
})

// PlaylistParses counts parse attempts by outcome (success, failure).
var PlaylistParses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptvdeck_playlist_parses_total",
	Help: "Playlist parse attempts by outcome",
}, []string{"outcome"})

// ChannelsParsed counts channels produced by the parser, by content type.
var ChannelsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptvdeck_channels_parsed_total",
	Help: "Channels produced by the playlist parser",
}, []string{"type"})

// PlaylistRefreshes counts playlist refreshes by outcome.
var PlaylistRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptvdeck_playlist_refreshes_total",
	Help: "Playlist refreshes by outcome",
}, []string{"outcome"})
