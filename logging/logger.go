package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/decred/slog"
)

// Subsystem tags used across the viewer
const (
	TagPoll      = "POLL"
	TagReconcile = "RECN"
	TagOutcome   = "OUTC"
	TagInput     = "INPT"
	TagSession   = "SESS"
	TagView      = "VIEW"
	TagHTTP      = "HTTP"
	TagRPC       = "RPC"
	TagSim       = "SIM"
)

// ViewerLogger owns the slog backend and writes structured event lines
type ViewerLogger struct {
	viewerID string
	backend  *slog.Backend
	level    slog.Level
	events   slog.Logger

	mutex      sync.Mutex
	subsystems map[string]slog.Logger
}

// NewViewerLogger creates a logger writing to w at the given level name
// ("trace", "debug", "info", ...). Unknown names fall back to info.
func NewViewerLogger(viewerID string, w io.Writer, levelName string) *ViewerLogger {
	level, ok := slog.LevelFromString(levelName)
	if !ok {
		level = slog.LevelInfo
	}

	backend := slog.NewBackend(w)
	events := backend.Logger("EVNT")
	events.SetLevel(level)

	return &ViewerLogger{
		viewerID:   viewerID,
		backend:    backend,
		level:      level,
		events:     events,
		subsystems: make(map[string]slog.Logger),
	}
}

// Subsystem returns the logger for a subsystem tag, creating it once
func (l *ViewerLogger) Subsystem(tag string) slog.Logger {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if logger, ok := l.subsystems[tag]; ok {
		return logger
	}
	logger := l.backend.Logger(tag)
	logger.SetLevel(l.level)
	l.subsystems[tag] = logger
	return logger
}

func (l *ViewerLogger) event(name, format string, args ...interface{}) {
	l.events.Infof("%s: viewer=%s %s at=%d", name, l.viewerID,
		fmt.Sprintf(format, args...), time.Now().UnixMilli())
}

// LogSnapshotApplied records a decoded snapshot that reached the view
func (l *ViewerLogger) LogSnapshotApplied(resource string, sessionID int64, epoch uint64) {
	l.event("SNAPSHOT_APPLIED", "resource=%s session=%d epoch=%d", resource, sessionID, epoch)
}

// LogSnapshotDiscarded records an update dropped by the epoch guard
func (l *ViewerLogger) LogSnapshotDiscarded(resource string, epoch, current uint64) {
	l.event("SNAPSHOT_DISCARDED", "resource=%s epoch=%d current_epoch=%d", resource, epoch, current)
}

// LogDeath records a death edge for a slot
func (l *ViewerLogger) LogDeath(sessionID int64, slot int) {
	l.event("DEATH", "session=%d slot=%d", sessionID, slot)
}

// LogOutcome records a decided session
func (l *ViewerLogger) LogOutcome(sessionID int64, winner string, slot int, balance uint64) {
	l.event("OUTCOME_DECIDED", "session=%d winner=%s slot=%d balance=%d", sessionID, winner, slot, balance)
}

// LogSessionChange records navigation between sessions
func (l *ViewerLogger) LogSessionChange(from, to int64, epoch uint64) {
	l.event("SESSION_CHANGE", "from=%d to=%d epoch=%d", from, to, epoch)
}

// LogCommand records an outbound command result
func (l *ViewerLogger) LogCommand(kind, id string, err error) {
	status := "SUCCESS"
	if err != nil {
		status = "FAILED"
	}
	l.event("COMMAND_SENT", "type=%s id=%s status=%s", kind, id, status)
}

// LogPollFailure records a failed remote read
func (l *ViewerLogger) LogPollFailure(resource string, sessionID int64, err error) {
	l.event("POLL_FAILED", "resource=%s session=%d error=%q", resource, sessionID, err.Error())
}

// LogDecodeFault records a snapshot discarded as malformed
func (l *ViewerLogger) LogDecodeFault(resource string, sessionID int64, err error) {
	l.event("DECODE_FAULT", "resource=%s session=%d error=%q", resource, sessionID, err.Error())
}

// LogCommandDropped records a move suppressed by the debounce window
func (l *ViewerLogger) LogCommandDropped(direction string, sessionID int64) {
	l.event("COMMAND_DROPPED", "direction=%s session=%d reason=debounce", direction, sessionID)
}

// LogError records an error for an operation
func (l *ViewerLogger) LogError(operation string, err error) {
	l.events.Errorf("ERROR: viewer=%s operation=%s error=%v at=%d",
		l.viewerID, operation, err, time.Now().UnixMilli())
}
