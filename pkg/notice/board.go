package notice

import (
	"sync"
	"time"

	"github.com/apex/log"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a message that the dashboard shows to the user as a blocking alert.
type Notice struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Poster is implemented by anything that can surface a notice to the user.
type Poster interface {
	Post(level Level, title, message string)
}

// Board keeps the most recent notices in memory
type Board struct {
	mu      sync.Mutex
	notices []Notice
	limit   int
	logger  *log.Entry
}

func NewBoard(limit int) *Board {
	if limit <= 0 {
		limit = 50
	}
	return &Board{
		limit:  limit,
		logger: log.WithField("module", "notices"),
	}
}

func (b *Board) Post(level Level, title, message string) {
	n := Notice{
		Level:   level,
		Title:   title,
		Message: message,
		Time:    time.Now(),
	}

	entry := b.logger.WithField("title", title)
	if level == LevelError {
		entry.Warn(message)
	} else {
		entry.Info(message)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	if len(b.notices) > b.limit {
		b.notices = b.notices[len(b.notices)-b.limit:]
	}
}

// List returns a copy of the stored notices, oldest first.
func (b *Board) List() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notice, len(b.notices))
	copy(out, b.notices)
	return out
}
