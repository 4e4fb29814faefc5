// Package metrics holds the Prometheus collectors shared across the
// transport and engine. Collectors live on a dedicated registry exposed
// by the status server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridline_frames_sent_total",
		Help: "Total number of frames written to the wire, by frame type",
	}, []string{"type"})
	FramesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridline_frames_received_total",
		Help: "Total number of frames decoded from the wire, by frame type",
	}, []string{"type"})
	ChannelsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridline_channels_open",
		Help: "Number of live channels (0 or 1 in a normal session)",
	})
	MovesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridline_moves_applied_total",
		Help: "Total number of moves accepted by the turn engine",
	})
	MovesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridline_moves_rejected_total",
		Help: "Total number of moves rejected by the turn engine, by reason",
	}, []string{"reason"})
	GamesFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridline_games_finished_total",
		Help: "Total number of games reaching a terminal state, by outcome",
	}, []string{"outcome"})
)

// Registry returns a registry with every gridline collector registered.
func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		buildInfo,
		FramesSent,
		FramesReceived,
		ChannelsOpen,
		MovesApplied,
		MovesRejected,
		GamesFinished,
	)
	return reg
}
