package metrics

import "github.com/prometheus/client_golang/prometheus"

var buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "gridline_build_info",
	Help: "Build information",
}, []string{"version", "sha", "date"})

// SetBuildInfo publishes the binary's build identity as a constant gauge.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(version, sha, date).Set(1)
}
