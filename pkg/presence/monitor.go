package presence

import (
	"context"
	"errors"

	"com.aviebrantz.smart-energy/pkg/location"
	"com.aviebrantz.smart-energy/pkg/notice"
	"github.com/apex/log"
)

// Monitor runs the one-shot presence check: ask for permission, take one
// position, evaluate it.
type Monitor struct {
	gate     *Gate
	provider location.Provider
	notices  notice.Poster
	logger   *log.Entry
}

func NewMonitor(gate *Gate, provider location.Provider, notices notice.Poster) *Monitor {
	return &Monitor{
		gate:     gate,
		provider: provider,
		notices:  notices,
		logger:   log.WithField("module", "presence-monitor"),
	}
}

func (m *Monitor) Check(ctx context.Context) (Reading, error) {
	if err := m.provider.RequestPermission(ctx); err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			m.notices.Post(notice.LevelError, "Permission denied for location", "")
		}
		return Reading{}, err
	}

	pos, err := m.provider.CurrentPosition(ctx)
	if err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			m.notices.Post(notice.LevelError, "Permission denied for location", "")
		}
		m.logger.Infof("no position to check: %v", err)
		return Reading{}, err
	}

	return m.gate.Evaluate(ctx, pos)
}
