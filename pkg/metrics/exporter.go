package metrics

import (
	"net/http"
	"strconv"

	"com.aviebrantz.smart-energy/pkg/config"
	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/apex/log"
)

// NewHandler creates the Prometheus exporter for every registered view.
func NewHandler(config config.MetricsConfig) (http.Handler, error) {
	return prometheus.NewExporter(prometheus.Options{
		Namespace: config.Namespace,
	})
}

// StartMetricsExporter serves the scrape endpoint on /metrics in the background.
func StartMetricsExporter(config config.MetricsConfig) {
	logger := log.WithField("module", "metrics")
	pe, err := NewHandler(config)
	if err != nil {
		logger.Fatalf("Failed to create the Prometheus stats exporter: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", pe)
		logger.Infof("Serving metrics on port %d", config.Port)
		if err := http.ListenAndServe(":"+strconv.Itoa(config.Port), mux); err != nil {
			logger.Fatalf("Failed to run Prometheus scrape endpoint: %v", err)
		}
	}()
}
