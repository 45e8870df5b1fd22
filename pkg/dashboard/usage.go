package dashboard

import (
	"context"
	"fmt"
	"time"

	"com.aviebrantz.smart-energy/pkg/config"
	"com.aviebrantz.smart-energy/pkg/core/store/historical"
)

// HomeSeriesID is the series holding whole-home daily readings.
const HomeSeriesID = "home"

// Bar is one day of the usage chart. Height is Value relative to the largest
// value in the chart, in [0, 1].
type Bar struct {
	Label  string    `json:"label"`
	Day    time.Time `json:"day"`
	Value  float64   `json:"value"`
	Height float64   `json:"height"`
}

// UsageChart sums the energy readings of the home series and every device into
// one bar per day.
type UsageChart struct {
	store      historical.TimeSeriesStore
	controller *Controller
}

func NewUsageChart(store historical.TimeSeriesStore, controller *Controller) *UsageChart {
	return &UsageChart{store: store, controller: controller}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Seed writes one home reading per day ending today, unless the range already
// holds data.
func (u *UsageChart) Seed(ctx context.Context, values []float64, now time.Time) error {
	if len(values) == 0 {
		return nil
	}
	today := startOfDay(now)
	first := today.AddDate(0, 0, -(len(values) - 1))

	existing, err := u.store.GetDataPointsInRange(ctx, historical.TypeEnergy, HomeSeriesID, first, today.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for i, v := range values {
		at := first.AddDate(0, 0, i).Add(12 * time.Hour)
		err := u.store.InsertDataPoint(ctx, historical.TypeEnergy, HomeSeriesID, at, map[string]interface{}{
			historical.FieldEnergyUse: v,
		})
		if err != nil {
			return fmt.Errorf("seed usage day %d: %w", i+1, err)
		}
	}
	return nil
}

// Bars returns the last days of usage, oldest first. days is clamped to
// config.MaxUsageDays.
func (u *UsageChart) Bars(ctx context.Context, days int, now time.Time) ([]Bar, error) {
	if days <= 0 {
		return []Bar{}, nil
	}
	if days > config.MaxUsageDays {
		days = config.MaxUsageDays
	}
	today := startOfDay(now)
	first := today.AddDate(0, 0, -(days - 1))
	end := today.AddDate(0, 0, 1).Add(-time.Nanosecond)

	ids := []string{HomeSeriesID}
	if u.controller != nil {
		devs, err := u.controller.Devices(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range devs {
			ids = append(ids, d.ID)
		}
	}

	bars := make([]Bar, days)
	for i := range bars {
		day := first.AddDate(0, 0, i)
		bars[i] = Bar{Label: fmt.Sprintf("Day %d", i+1), Day: day}
	}

	for _, id := range ids {
		points, err := u.store.GetDataPointsInRange(ctx, historical.TypeEnergy, id, first, end)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			v, ok := p.Float(historical.FieldEnergyUse)
			if !ok {
				continue
			}
			idx := dayIndex(first, p.Time.In(first.Location()))
			if idx >= 0 && idx < days {
				bars[idx].Value += v
			}
		}
	}

	max := 0.0
	for _, b := range bars {
		if b.Value > max {
			max = b.Value
		}
	}
	if max > 0 {
		for i := range bars {
			bars[i].Height = bars[i].Value / max
		}
	}
	return bars, nil
}

// dayIndex counts calendar days from first to t, negative when t is earlier.
func dayIndex(first, t time.Time) int {
	y1, m1, d1 := first.Date()
	y2, m2, d2 := t.Date()
	from := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	to := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
