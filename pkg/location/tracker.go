package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"com.aviebrantz.smart-energy/pkg/geo"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrNoFix is returned when no position has been received yet.
	ErrNoFix = errors.New("no location fix")
)

// Provider is a one-shot source of the phone's position.
type Provider interface {
	RequestPermission(ctx context.Context) error
	CurrentPosition(ctx context.Context) (geo.Coordinate, error)
}

type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Sample is one position reported by the phone.
type Sample struct {
	Coordinate geo.Coordinate `json:"coordinate" cbor:"coordinate"`
	Time       time.Time      `json:"time" cbor:"time"`
}

// Tracker is a Provider backed by what the phone pushes: its answer to the
// permission prompt and its latest position.
type Tracker struct {
	mu         sync.RWMutex
	permission Permission
	latest     *Sample
}

func NewTracker() *Tracker {
	return &Tracker{permission: PermissionUnknown}
}

func (t *Tracker) SetPermission(granted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if granted {
		t.permission = PermissionGranted
	} else {
		t.permission = PermissionDenied
		t.latest = nil
	}
}

func (t *Tracker) Permission() Permission {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.permission
}

// Update records a new sample. A sample implies the permission was granted.
func (t *Tracker) Update(s Sample) {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.permission = PermissionGranted
	if t.latest == nil || !s.Time.Before(t.latest.Time) {
		t.latest = &s
	}
}

func (t *Tracker) RequestPermission(ctx context.Context) error {
	if t.Permission() == PermissionDenied {
		return ErrPermissionDenied
	}
	return nil
}

func (t *Tracker) CurrentPosition(ctx context.Context) (geo.Coordinate, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.permission == PermissionDenied {
		return geo.Coordinate{}, ErrPermissionDenied
	}
	if t.latest == nil {
		return geo.Coordinate{}, ErrNoFix
	}
	return t.latest.Coordinate, nil
}
