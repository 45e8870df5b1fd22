package devices

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrDeviceExists   = errors.New("device already exists")
	ErrDeviceNotFound = errors.New("device not found")
)

type DeviceStore interface {
	GetDeviceByID(ctx context.Context, id string) (*Device, error)
	CreateDevice(ctx context.Context, device *Device) error
	UpdateDevice(ctx context.Context, id string, updated time.Time, updates map[string]interface{}) error
	ListDevices(ctx context.Context) ([]*Device, error)
}

type Icon string

const (
	IconBulb        Icon = "bulb"
	IconThermometer Icon = "thermometer"
	IconTV          Icon = "tv"
	IconPlug        Icon = "plug"
)

// Device field names, shared by the updates maps and both backends.
const (
	FieldID        = "deviceID"
	FieldName      = "name"
	FieldIcon      = "icon"
	FieldOn        = "on"
	FieldOnline    = "online"
	FieldPowerDraw = "powerDraw"
	FieldCreated   = "created"
	FieldUpdated   = "updated"
)

type Device struct {
	ID        string    `json:"id" docstore:"deviceID"`
	Name      string    `json:"name" docstore:"name"`
	Icon      Icon      `json:"icon" docstore:"icon"`
	On        bool      `json:"on" docstore:"on"`
	Online    bool      `json:"online" docstore:"online"`
	PowerDraw string    `json:"powerDraw" docstore:"powerDraw"`
	Created   time.Time `json:"created" docstore:"created"`
	Updated   time.Time `json:"updated" docstore:"updated"`
}

// Watts parses PowerDraw labels such as "1200W" or "1.5kW".
func (d *Device) Watts() (float64, error) {
	label := strings.TrimSpace(d.PowerDraw)
	multiplier := 1.0
	switch {
	case strings.HasSuffix(label, "kW"):
		multiplier = 1000
		label = strings.TrimSuffix(label, "kW")
	case strings.HasSuffix(label, "W"):
		label = strings.TrimSuffix(label, "W")
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(label), 64)
	if err != nil {
		return 0, err
	}
	return value * multiplier, nil
}
