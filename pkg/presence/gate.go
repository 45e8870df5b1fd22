package presence

import (
	"context"
	"sync"
	"time"

	"com.aviebrantz.smart-energy/pkg/config"
	"com.aviebrantz.smart-energy/pkg/geo"
	"com.aviebrantz.smart-energy/pkg/homegraph"
	"github.com/apex/log"
)

// Commander issues device commands. The dashboard controller implements it so
// that an automatic command also updates the local device state.
type Commander interface {
	ExecuteCommand(ctx context.Context, req homegraph.CommandRequest) (homegraph.Response, error)
}

// Reading is the latest distance from home. Only the newest one is kept.
type Reading struct {
	Meters    float64   `json:"meters"`
	Time      time.Time `json:"time"`
	Triggered bool      `json:"triggered"`
}

// Gate switches the monitored device off whenever a sample is farther from
// home than the threshold. It keeps no hysteresis: every sample above the
// threshold issues a command, even if the device is already off.
type Gate struct {
	home        geo.Coordinate
	threshold   float64
	deviceID    string
	agentUserID string
	commander   Commander
	logger      *log.Entry

	mu     sync.RWMutex
	latest *Reading
}

func NewGate(cfg config.HomeConfig, agentUserID string, commander Commander) *Gate {
	return &Gate{
		home:        geo.Coordinate{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
		threshold:   cfg.ThresholdMeters,
		deviceID:    cfg.MonitoredDeviceID,
		agentUserID: agentUserID,
		commander:   commander,
		logger:      log.WithField("module", "presence-gate"),
	}
}

func (g *Gate) Home() geo.Coordinate {
	return g.home
}

func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Evaluate records the distance of current from home and, when it exceeds the
// threshold, commands the monitored device off. The reading is stored even if
// the command fails.
func (g *Gate) Evaluate(ctx context.Context, current geo.Coordinate) (Reading, error) {
	meters := geo.Distance(g.home, current)
	reading := Reading{
		Meters:    meters,
		Time:      time.Now(),
		Triggered: meters > g.threshold,
	}

	g.mu.Lock()
	g.latest = &reading
	g.mu.Unlock()

	entry := g.logger.WithFields(log.Fields{
		"meters":    reading.Meters,
		"threshold": g.threshold,
	})
	if !reading.Triggered {
		entry.Debug("within home radius")
		return reading, nil
	}

	entry.WithField("device", g.deviceID).Info("away from home, switching device off")
	_, err := g.commander.ExecuteCommand(ctx, homegraph.CommandRequest{
		AgentUserID: g.agentUserID,
		DeviceID:    g.deviceID,
		On:          false,
	})
	return reading, err
}

// Latest returns the most recent reading, if any.
func (g *Gate) Latest() (Reading, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.latest == nil {
		return Reading{}, false
	}
	return *g.latest, true
}
