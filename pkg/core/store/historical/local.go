package historical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// timeKeyLayout sorts lexically in time order, which the cursor range scan relies on.
// Keys are the formatted time followed by a random suffix, so points reported
// at the same instant do not overwrite each other.
const timeKeyLayout = "2006-01-02T15:04:05.000000000Z"

var timeKeyLen = len(timeKeyLayout)

type localTimeSeriesStore struct {
	db *bolt.DB
}

func NewTimeSeriesLocalStore(db *bolt.DB) TimeSeriesStore {
	return &localTimeSeriesStore{
		db: db,
	}
}

func getBucketName(datatype, id string) string {
	return fmt.Sprintf("history_%s_%s", datatype, id)
}

func timeKey(t time.Time) []byte {
	return []byte(t.UTC().Format(timeKeyLayout))
}

func pointKey(t time.Time) []byte {
	return append(timeKey(t), []byte("/"+uuid.New().String())...)
}

func (s *localTimeSeriesStore) InsertDataPoint(ctx context.Context, datatype string, id string, reportedTime time.Time, data map[string]interface{}) error {
	value, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		buck, err := tx.CreateBucketIfNotExists([]byte(getBucketName(datatype, id)))
		if err != nil {
			return err
		}
		return buck.Put(pointKey(reportedTime), value)
	})
}

func (s *localTimeSeriesStore) GetDataPointsInRange(ctx context.Context, datatype string, id string, start time.Time, end time.Time) ([]*DataPoint, error) {
	points := make([]*DataPoint, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		min := timeKey(start)
		max := timeKey(end)

		buck := tx.Bucket([]byte(getBucketName(datatype, id)))
		if buck == nil {
			return nil
		}

		c := buck.Cursor()
		for k, v := c.Seek(min); k != nil && len(k) >= timeKeyLen && bytes.Compare(k[:timeKeyLen], max) <= 0; k, v = c.Next() {
			t, err := time.Parse(timeKeyLayout, string(k[:timeKeyLen]))
			if err != nil {
				continue
			}

			data := make(map[string]interface{})
			err = json.Unmarshal(v, &data)
			if err != nil {
				continue
			}

			points = append(points, &DataPoint{
				Time: t,
				Data: data,
			})
		}
		return nil
	})

	return points, err
}
