package historical

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
	"gocloud.dev/docstore/memdocstore"
)

func openStores(t *testing.T) map[string]TimeSeriesStore {
	t.Helper()

	coll, err := memdocstore.OpenCollection("id", nil)
	if err != nil {
		t.Fatalf("could not open usage collection: %v", err)
	}
	t.Cleanup(func() { coll.Close() })

	db, err := bolt.Open(filepath.Join(t.TempDir(), "usage.db"), 0600, nil)
	if err != nil {
		t.Fatalf("could not open bolt db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]TimeSeriesStore{
		"docstore": NewHistoricalDocStore(coll),
		"local":    NewTimeSeriesLocalStore(db),
	}
}

func TestTimeSeriesStores(t *testing.T) {
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range openStores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, v := range []float64{50, 40, 60} {
				at := base.Add(time.Duration(i) * 24 * time.Hour)
				if err := store.InsertDataPoint(ctx, TypeEnergy, "home", at, map[string]interface{}{FieldEnergyUse: v}); err != nil {
					t.Fatalf("InsertDataPoint() failed: %v", err)
				}
			}
			if err := store.InsertDataPoint(ctx, TypeEnergy, "other", base, map[string]interface{}{FieldEnergyUse: 1.0}); err != nil {
				t.Fatalf("InsertDataPoint() failed: %v", err)
			}

			points, err := store.GetDataPointsInRange(ctx, TypeEnergy, "home", base.Add(time.Hour), base.Add(72*time.Hour))
			if err != nil {
				t.Fatalf("GetDataPointsInRange() failed: %v", err)
			}
			if len(points) != 2 {
				t.Fatalf("got %d points, want 2", len(points))
			}
			if !points[0].Time.Equal(base.Add(24*time.Hour)) || !points[1].Time.Equal(base.Add(48*time.Hour)) {
				t.Fatalf("points out of order: %v, %v", points[0].Time, points[1].Time)
			}
			if v, ok := points[0].Float(FieldEnergyUse); !ok || v != 40 {
				t.Fatalf("energy = %v, %v", v, ok)
			}

			same := base.Add(72 * time.Hour)
			for _, v := range []float64{10, 80} {
				if err := store.InsertDataPoint(ctx, TypeEnergy, "home", same, map[string]interface{}{FieldEnergyUse: v}); err != nil {
					t.Fatalf("InsertDataPoint() failed: %v", err)
				}
			}
			points, err = store.GetDataPointsInRange(ctx, TypeEnergy, "home", same, same)
			if err != nil {
				t.Fatalf("GetDataPointsInRange() failed: %v", err)
			}
			if len(points) != 2 {
				t.Fatalf("readings at the same instant stored as %d point(s)", len(points))
			}

			empty, err := store.GetDataPointsInRange(ctx, TypeEnergy, "nobody", base, base.Add(time.Hour))
			if err != nil || len(empty) != 0 {
				t.Fatalf("unknown id returned %v, %v", empty, err)
			}
		})
	}
}
