package historical

import (
	"context"
	"sort"
	"time"
)

// Data types stored in the time series.
const (
	TypeEnergy = "energy"
)

// FieldEnergyUse is the data key holding an energy reading in watts.
const FieldEnergyUse = "energyUse"

type TimeSeriesStore interface {
	InsertDataPoint(ctx context.Context, datatype string, id string, time time.Time, data map[string]interface{}) error
	GetDataPointsInRange(ctx context.Context, datatype string, id string, start time.Time, end time.Time) ([]*DataPoint, error)
}

type DataPoint struct {
	Time time.Time              `json:"time"`
	Data map[string]interface{} `json:"data"`
}

// Float reads a numeric field regardless of how the backend decoded it.
func (p *DataPoint) Float(key string) (float64, bool) {
	switch v := p.Data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func sortByTime(points []*DataPoint) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
}
