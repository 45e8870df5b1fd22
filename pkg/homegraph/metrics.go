package homegraph

import (
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MLatencyMs = stats.Float64("homegraph/latency", "The latency in milliseconds per call", "ms")

	MCalls = stats.Int64("homegraph/calls", "Number of calls", "1")
)

var (
	LatencyView = &view.View{
		Name:        "homegraph/latency",
		Measure:     MLatencyMs,
		Description: "The distribution of the call latencies",

		Aggregation: view.Distribution(0, 25, 50, 75, 100, 200, 400, 600, 800, 1000, 2000, 4000, 6000),
		TagKeys:     []tag.Key{KeyMethod},
	}

	CallsCountView = &view.View{
		Name:        "homegraph/calls",
		Measure:     MCalls,
		Description: "Number of calls by outcome",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyMethod, KeyStatus},
	}
)

var (
	KeyMethod, _ = tag.NewKey("method")
	KeyStatus, _ = tag.NewKey("status")
)

// RegisterMetrics registers the client views with OpenCensus.
func RegisterMetrics() error {
	return view.Register(LatencyView, CallsCountView)
}

func sinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}
