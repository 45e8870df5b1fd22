package historical

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/docstore"
)

type historicalDocStore struct {
	coll *docstore.Collection
}

// NewHistoricalDocStore create a historical store using a gocloud.dev/docstore
// collection keyed by "id".
func NewHistoricalDocStore(coll *docstore.Collection) TimeSeriesStore {
	return &historicalDocStore{
		coll: coll,
	}
}

func (s *historicalDocStore) InsertDataPoint(ctx context.Context, datatype string, id string, reportedTime time.Time, data map[string]interface{}) error {
	doc := make(map[string]interface{}, len(data)+4)
	for k, v := range data {
		doc[k] = v
	}
	doc["id"] = fmt.Sprintf("%s/%s/%d/%s", datatype, id, reportedTime.UnixNano(), uuid.New().String())
	doc["deviceID"] = id
	doc["type"] = datatype
	doc["time"] = reportedTime.UTC().Format(time.RFC3339Nano)
	return s.coll.Actions().Put(doc).Do(ctx)
}

func (s *historicalDocStore) GetDataPointsInRange(ctx context.Context, datatype string, id string, start time.Time, end time.Time) ([]*DataPoint, error) {
	iter := s.coll.
		Query().
		Where("deviceID", "=", id).
		Where("type", "=", datatype).
		Get(ctx)

	defer iter.Stop()

	points := make([]*DataPoint, 0)
	for {
		data := make(map[string]interface{})
		err := iter.Next(ctx, data)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		timeStr, _ := data["time"].(string)
		t, err := time.Parse(time.RFC3339Nano, timeStr)
		if err != nil {
			continue
		}
		if t.Before(start) || t.After(end) {
			continue
		}

		for _, k := range []string{"id", "deviceID", "type", "time"} {
			delete(data, k)
		}
		points = append(points, &DataPoint{
			Time: t,
			Data: data,
		})
	}

	sortByTime(points)
	return points, nil
}
