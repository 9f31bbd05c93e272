// Package session tracks which game session is viewed, independently of
// which session is newest on the remote service.
package session

import (
	"context"
	"sync"

	"github.com/decred/slog"
	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/protocol"
)

// MinSessionID is the lowest valid session id
const MinSessionID int64 = 1

// CommandSender delivers outbound commands to the remote service
type CommandSender interface {
	Send(ctx context.Context, cmd protocol.Command) error
}

// Selector holds the locally chosen session id and the last polled top id
type Selector struct {
	current  int64
	top      int64
	topKnown bool
	log      slog.Logger
	mutex   sync.RWMutex
}

// NewSelector creates a selector viewing the given session. Ids below the
// minimum are clamped.
func NewSelector(initial int64, log slog.Logger) *Selector {
	if log == nil {
		log = slog.Disabled
	}
	if initial < MinSessionID {
		initial = MinSessionID
	}
	return &Selector{current: initial, log: log}
}

// Current returns the viewed session id
func (s *Selector) Current() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current
}

// Top returns the newest known session id, 0 before the first poll
func (s *Selector) Top() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.top
}

// SetTop records a polled top session id
func (s *Selector) SetTop(top int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if top < 0 {
		top = 0
	}
	s.top = top
	s.topKnown = true
}

// TopKnown reports whether a top session id has been polled yet
func (s *Selector) TopKnown() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.topKnown
}

// Next moves to the following session and returns the new id
func (s *Selector) Next() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.current++
	s.log.Debugf("Viewing session %d", s.current)
	return s.current
}

// Previous moves to the preceding session. At the minimum it is a no-op.
func (s *Selector) Previous() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current > MinSessionID {
		s.current--
		s.log.Debugf("Viewing session %d", s.current)
	}
	return s.current
}

// Select jumps to an explicit session id
func (s *Selector) Select(id int64) error {
	if id < MinSessionID {
		return faults.Invariantf("select_session", "session id %d below minimum %d", id, MinSessionID)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.current = id
	return nil
}

// CanCreateNext reports whether the viewed session is the one right after
// the newest known session. It is false until a top id has been polled.
func (s *Selector) CanCreateNext() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.topKnown && s.current == s.top+1
}

// CreateNext asks the service to initialise the viewed session. It is
// rejected locally, before anything is sent, unless CanCreateNext holds.
func (s *Selector) CreateNext(ctx context.Context, sender CommandSender) error {
	s.mutex.RLock()
	current, top, known := s.current, s.top, s.topKnown
	s.mutex.RUnlock()

	if !known {
		s.log.Warnf("Refusing to create session %d, newest session not polled yet", current)
		return faults.Invariantf("create_session", "newest session id not known yet")
	}
	if current != top+1 {
		s.log.Warnf("Refusing to create session %d, newest is %d", current, top)
		return faults.Invariantf("create_session",
			"can only create session %d, viewing %d", top+1, current)
	}

	cmd := protocol.CreateInitSessionCommand()
	if err := sender.Send(ctx, cmd); err != nil {
		return err
	}
	s.log.Infof("Requested creation of session %d (command %s)", current, cmd.ID)
	return nil
}

// GetStats returns selector statistics
func (s *Selector) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return map[string]interface{}{
		"current":         s.current,
		"top":             s.top,
		"top_known":       s.topKnown,
		"can_create_next": s.topKnown && s.current == s.top+1,
	}
}
