package stage3d

// stage3d is a scene-graph runtime for 3D games: node lifecycle, per-frame ticking, input dispatch and
// physics / audio / renderer integration, built around Nodes that live in Worlds driven by a GameManager.

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
)

// SetLogger sets the logger used by the scene graph. Passing nil restores the no-op logger.
func SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	loggerMu.Lock()
	logger = log
	loggerMu.Unlock()
}

// Logger returns the logger used by the scene graph.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// InvariantError is the panic payload raised when an internal consistency rule of the scene graph is broken
// (destroying a spawned node, registering an ID twice, requesting two worlds at once, and so on).
// The scene graph can't keep running safely after one of these, so they aren't returned as errors.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return e.Message
}

// fatal logs the message, flushes the log sink, and panics with an *InvariantError.
func fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log := Logger()
	log.Error(msg, zap.Stack("stack"))
	_ = log.Sync()
	panic(&InvariantError{Message: msg})
}
