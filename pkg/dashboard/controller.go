package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"com.aviebrantz.smart-energy/pkg/auth"
	"com.aviebrantz.smart-energy/pkg/config"
	"com.aviebrantz.smart-energy/pkg/core/store/devices"
	"com.aviebrantz.smart-energy/pkg/homegraph"
	"com.aviebrantz.smart-energy/pkg/notice"
	"github.com/apex/log"
)

var ErrDeviceNotFound = devices.ErrDeviceNotFound

// DeviceAPI is the remote device-control API.
type DeviceAPI interface {
	ReportState(ctx context.Context, req homegraph.ReportRequest) (homegraph.Response, error)
	ExecuteCommand(ctx context.Context, req homegraph.CommandRequest) (homegraph.Response, error)
}

// UsageRecorder receives the energy readings of successful reports.
type UsageRecorder interface {
	Record(ctx context.Context, id string, at time.Time, watts float64) error
}

// Controller owns the dashboard's device state and turns user actions into
// device API calls.
type Controller struct {
	store       devices.DeviceStore
	api         DeviceAPI
	usage       UsageRecorder
	notices     notice.Poster
	agentUserID string
	logger      *log.Entry

	// guards read-flip-write of device state; never held across a command
	stateMu sync.Mutex
}

func NewController(store devices.DeviceStore, api DeviceAPI, usage UsageRecorder, notices notice.Poster, agentUserID string) *Controller {
	return &Controller{
		store:       store,
		api:         api,
		usage:       usage,
		notices:     notices,
		agentUserID: agentUserID,
		logger:      log.WithField("module", "dashboard"),
	}
}

// Seed creates the configured devices that do not exist yet.
func (c *Controller) Seed(ctx context.Context, cfgs []config.DeviceConfig) error {
	for _, cfg := range cfgs {
		err := c.store.CreateDevice(ctx, &devices.Device{
			ID:        cfg.ID,
			Name:      cfg.Name,
			Icon:      devices.Icon(cfg.Icon),
			On:        cfg.On,
			Online:    true,
			PowerDraw: cfg.PowerDraw,
		})
		if err != nil && !errors.Is(err, devices.ErrDeviceExists) {
			return fmt.Errorf("seed device %s: %w", cfg.ID, err)
		}
	}
	return nil
}

func (c *Controller) Devices(ctx context.Context) ([]*devices.Device, error) {
	return c.store.ListDevices(ctx)
}

func (c *Controller) device(ctx context.Context, id string) (*devices.Device, error) {
	dev, err := c.store.GetDeviceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, ErrDeviceNotFound
	}
	return dev, nil
}

// Toggle flips the device locally before the command is confirmed and issues
// exactly one command with the new state. The local flip is rolled back if
// the command fails.
func (c *Controller) Toggle(ctx context.Context, id string) (*devices.Device, homegraph.Response, error) {
	dev, err := c.flip(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	desired := dev.On

	resp, err := c.execute(ctx, homegraph.CommandRequest{
		AgentUserID: c.agentUserID,
		DeviceID:    id,
		On:          desired,
	})
	if err != nil {
		if rerr := c.rollback(ctx, id, desired); rerr != nil {
			c.logger.Errorf("rollback of %s failed: %v", id, rerr)
		} else {
			dev.On = !desired
		}
		return dev, nil, err
	}
	return dev, resp, nil
}

func (c *Controller) flip(ctx context.Context, id string) (*devices.Device, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	dev, err := c.device(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.setOn(ctx, id, !dev.On); err != nil {
		return nil, err
	}
	dev.On = !dev.On
	return dev, nil
}

// rollback undoes a failed flip unless another toggle changed the device since.
func (c *Controller) rollback(ctx context.Context, id string, flipped bool) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	dev, err := c.device(ctx, id)
	if err != nil {
		return err
	}
	if dev.On != flipped {
		return nil
	}
	return c.setOn(ctx, id, !flipped)
}

// ExecuteCommand issues a command on behalf of an automation and, once the
// provider accepts it, makes the local device follow.
func (c *Controller) ExecuteCommand(ctx context.Context, req homegraph.CommandRequest) (homegraph.Response, error) {
	if req.AgentUserID == "" {
		req.AgentUserID = c.agentUserID
	}
	resp, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	c.stateMu.Lock()
	err = c.setOn(ctx, req.DeviceID, req.On)
	c.stateMu.Unlock()
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		c.logger.Warnf("local state of %s not updated: %v", req.DeviceID, err)
	}
	return resp, nil
}

// Report sends the device's current state. energyUse defaults to the device's
// power draw when on and zero when off.
func (c *Controller) Report(ctx context.Context, id string, energyUse *float64) (homegraph.Response, error) {
	dev, err := c.device(ctx, id)
	if err != nil {
		return nil, err
	}

	watts := 0.0
	switch {
	case energyUse != nil:
		watts = *energyUse
	case dev.On:
		if watts, err = dev.Watts(); err != nil {
			c.logger.Warnf("device %s has no usable power draw %q", id, dev.PowerDraw)
			watts = 0
		}
	}

	resp, err := c.api.ReportState(ctx, homegraph.ReportRequest{
		AgentUserID:      c.agentUserID,
		DeviceID:         id,
		On:               dev.On,
		Online:           dev.Online,
		CurrentEnergyUse: watts,
	})
	if err != nil {
		c.postFailure("Error reporting device state", err)
		return nil, err
	}
	c.notices.Post(notice.LevelInfo, "Reported device state", encodeResponse(resp))

	if c.usage != nil {
		if err := c.usage.Record(ctx, id, time.Now(), watts); err != nil {
			c.logger.Warnf("usage reading of %s not recorded: %v", id, err)
		}
	}
	return resp, nil
}

func (c *Controller) execute(ctx context.Context, req homegraph.CommandRequest) (homegraph.Response, error) {
	resp, err := c.api.ExecuteCommand(ctx, req)
	if err != nil {
		c.postFailure("Error executing device command", err)
		return nil, err
	}
	c.notices.Post(notice.LevelInfo, "Executed device command", encodeResponse(resp))
	return resp, nil
}

func (c *Controller) setOn(ctx context.Context, id string, on bool) error {
	return c.store.UpdateDevice(ctx, id, time.Now(), map[string]interface{}{
		devices.FieldOn: on,
	})
}

func (c *Controller) postFailure(title string, err error) {
	if errors.Is(err, auth.ErrUnauthenticated) {
		c.notices.Post(notice.LevelError, "Not authenticated", "")
		return
	}
	var terr *homegraph.TransportError
	if errors.As(err, &terr) && terr.Payload != nil {
		c.notices.Post(notice.LevelError, title, encodeResponse(terr.Payload))
		return
	}
	c.notices.Post(notice.LevelError, title, err.Error())
}

func encodeResponse(resp homegraph.Response) string {
	data, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	return string(data)
}
