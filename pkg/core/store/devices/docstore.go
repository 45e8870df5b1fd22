package devices

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/apex/log"
	"github.com/jeremywohl/flatten"
	"gocloud.dev/docstore"
	"gocloud.dev/gcerrors"
)

type deviceDocStore struct {
	devicesColl *docstore.Collection
	logger      *log.Entry
}

// NewDeviceDocStore create a device store using a gocloud.dev/docstore collection
// keyed by "deviceID".
func NewDeviceDocStore(devicesColl *docstore.Collection) DeviceStore {
	return &deviceDocStore{
		devicesColl: devicesColl,
		logger:      log.WithField("module", "device-docstore"),
	}
}

func (s *deviceDocStore) GetDeviceByID(ctx context.Context, id string) (*Device, error) {
	device := &Device{ID: id}
	err := s.devicesColl.Get(ctx, device)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return device, nil
}

func (s *deviceDocStore) CreateDevice(ctx context.Context, device *Device) error {
	now := time.Now()
	device.Created = now
	device.Updated = now
	err := s.devicesColl.Create(ctx, device)
	if gcerrors.Code(err) == gcerrors.AlreadyExists {
		return ErrDeviceExists
	}
	return err
}

func (s *deviceDocStore) UpdateDevice(ctx context.Context, id string, updated time.Time, updates map[string]interface{}) error {
	nestedUpdates, err := flatten.Flatten(updates, "", flatten.DotStyle)
	if err != nil {
		s.logger.Warnf("invalid update format :%v", err)
		return err
	}

	nestedUpdates[FieldUpdated] = updated
	mods := docstore.Mods{}
	for k, v := range nestedUpdates {
		mods[docstore.FieldPath(k)] = v
	}

	err = s.devicesColl.Update(ctx, &Device{ID: id}, mods)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return ErrDeviceNotFound
	}
	return err
}

func (s *deviceDocStore) ListDevices(ctx context.Context) ([]*Device, error) {
	iter := s.devicesColl.Query().Get(ctx)
	defer iter.Stop()

	devices := make([]*Device, 0)
	for {
		device := &Device{}
		err := iter.Next(ctx, device)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}
