package devices

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/jeremywohl/flatten"
	"github.com/nqd/flat"
	bolt "go.etcd.io/bbolt"
)

// deviceLocalStore saves device data locally on filesystem, one bucket per device
type deviceLocalStore struct {
	db     *bolt.DB
	logger *log.Entry
}

const deviceBucketPrefix = "device_"

func NewDeviceLocalStore(db *bolt.DB) DeviceStore {
	return &deviceLocalStore{
		db:     db,
		logger: log.WithField("module", "device-localstore"),
	}
}

func (s *deviceLocalStore) GetDeviceByID(ctx context.Context, id string) (*Device, error) {
	var device *Device
	err := s.db.View(func(tx *bolt.Tx) error {
		buck := tx.Bucket([]byte(deviceBucketPrefix + id))
		if buck == nil {
			return nil
		}

		data := make(map[string]interface{})
		cur := buck.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			data[string(k)] = string(v)
		}

		nestedData, err := flat.Unflatten(data, &flat.Options{
			Delimiter: "/",
		})
		if err != nil {
			return err
		}

		device, err = deviceFromData(id, nestedData)
		return err
	})

	return device, err
}

func (s *deviceLocalStore) CreateDevice(ctx context.Context, device *Device) error {
	now := time.Now()
	device.Created = now
	device.Updated = now

	return s.db.Update(func(tx *bolt.Tx) error {
		name := []byte(deviceBucketPrefix + device.ID)
		if tx.Bucket(name) != nil {
			return ErrDeviceExists
		}
		buck, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}
		return putFields(buck, map[string]interface{}{
			FieldID:        device.ID,
			FieldName:      device.Name,
			FieldIcon:      string(device.Icon),
			FieldOn:        device.On,
			FieldOnline:    device.Online,
			FieldPowerDraw: device.PowerDraw,
			FieldCreated:   device.Created,
			FieldUpdated:   device.Updated,
		})
	})
}

func (s *deviceLocalStore) UpdateDevice(ctx context.Context, id string, updated time.Time, updates map[string]interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buck := tx.Bucket([]byte(deviceBucketPrefix + id))
		if buck == nil {
			return ErrDeviceNotFound
		}

		fields := make(map[string]interface{}, len(updates)+1)
		for k, v := range updates {
			fields[k] = v
		}
		fields[FieldUpdated] = updated
		return putFields(buck, fields)
	})
}

func (s *deviceLocalStore) ListDevices(ctx context.Context) ([]*Device, error) {
	ids := make([]string, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if strings.HasPrefix(string(name), deviceBucketPrefix) {
				ids = append(ids, strings.TrimPrefix(string(name), deviceBucketPrefix))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(ids)
	devices := make([]*Device, 0, len(ids))
	for _, id := range ids {
		device, err := s.GetDeviceByID(ctx, id)
		if err != nil {
			s.logger.Warnf("skipping unreadable device %s: %v", id, err)
			continue
		}
		if device != nil {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

func putFields(buck *bolt.Bucket, fields map[string]interface{}) error {
	flattenData, err := flatten.Flatten(fields, "", flatten.PathStyle)
	if err != nil {
		return err
	}

	for k, v := range flattenData {
		err = buck.Put([]byte(k), []byte(encodeValue(v)))
		if err != nil {
			return err
		}
	}
	return nil
}

func encodeValue(v interface{}) string {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v)
}

func deviceFromData(id string, data map[string]interface{}) (*Device, error) {
	str := func(key string) string {
		if v, ok := data[key].(string); ok {
			return v
		}
		return ""
	}
	boolean := func(key string) (bool, error) {
		v := str(key)
		if v == "" {
			return false, nil
		}
		return strconv.ParseBool(v)
	}
	timestamp := func(key string) (time.Time, error) {
		v := str(key)
		if v == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, v)
	}

	device := &Device{
		ID:        id,
		Name:      str(FieldName),
		Icon:      Icon(str(FieldIcon)),
		PowerDraw: str(FieldPowerDraw),
	}

	var err error
	if device.On, err = boolean(FieldOn); err != nil {
		return nil, fmt.Errorf("device %s: field %s: %w", id, FieldOn, err)
	}
	if device.Online, err = boolean(FieldOnline); err != nil {
		return nil, fmt.Errorf("device %s: field %s: %w", id, FieldOnline, err)
	}
	if device.Created, err = timestamp(FieldCreated); err != nil {
		return nil, fmt.Errorf("device %s: field %s: %w", id, FieldCreated, err)
	}
	if device.Updated, err = timestamp(FieldUpdated); err != nil {
		return nil, fmt.Errorf("device %s: field %s: %w", id, FieldUpdated, err)
	}
	return device, nil
}
