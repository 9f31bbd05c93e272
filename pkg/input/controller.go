// Package input turns directional key presses into rate-limited move
// commands
package input

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/pacroyale/viewer/pkg/protocol"
)

// DefaultDebounce is the minimum gap between two forwarded moves
const DefaultDebounce = 350 * time.Millisecond

// Sender delivers move commands to the remote service
type Sender interface {
	Send(ctx context.Context, cmd protocol.Command) error
}

// keyMap maps key identifiers to directions. Browser-style arrow names and
// plain direction names are both accepted.
var keyMap = map[string]protocol.Direction{
	"arrowup":    protocol.Up,
	"arrowdown":  protocol.Down,
	"arrowleft":  protocol.Left,
	"arrowright": protocol.Right,
	"up":         protocol.Up,
	"down":       protocol.Down,
	"left":       protocol.Left,
	"right":      protocol.Right,
}

// DirectionForKey returns the direction bound to a key identifier
func DirectionForKey(key string) (protocol.Direction, bool) {
	d, ok := keyMap[strings.ToLower(strings.TrimSpace(key))]
	return d, ok
}

// Result describes what happened to one press
type Result string

const (
	Forwarded  Result = "forwarded"
	Debounced  Result = "debounced"
	UnknownKey Result = "unknown_key"
	Closed     Result = "closed"
)

// Controller applies a global debounce to key presses and dispatches the
// surviving moves asynchronously. It never moves anything locally; the
// effect shows up on the next successful positions poll.
type Controller struct {
	sender    Sender
	sessionID func() int64
	debounce  time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       slog.Logger

	// OnResult, when set, is called from the dispatch goroutine after each
	// send completes
	OnResult func(cmd protocol.Command, err error)

	// OnDropped, when set, is called for every press inside the debounce
	// window
	OnDropped func(dir protocol.Direction, sessionID int64)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex         sync.Mutex
	lastForwarded time.Time
	hasForwarded  bool
	closed        bool
	forwarded     int64
	dropped       int64
	failed        int64
}

// NewController creates a controller sending moves for the session
// returned by sessionID
func NewController(sender Sender, sessionID func() int64, debounce, timeout time.Duration, log slog.Logger) *Controller {
	if log == nil {
		log = slog.Disabled
	}
	if debounce < 0 {
		debounce = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sender:    sender,
		sessionID: sessionID,
		debounce:  debounce,
		timeout:   timeout,
		now:       time.Now,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetClock replaces the time source, used by tests
func (c *Controller) SetClock(now func() time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = now
}

// Press handles one key press
func (c *Controller) Press(key string) Result {
	dir, ok := DirectionForKey(key)
	if !ok {
		c.log.Tracef("Ignoring key %q", key)
		return UnknownKey
	}
	return c.PressDirection(dir)
}

// PressDirection handles a press already mapped to a direction
func (c *Controller) PressDirection(dir protocol.Direction) Result {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return Closed
	}
	now := c.now()
	if c.hasForwarded && now.Sub(c.lastForwarded) < c.debounce {
		c.dropped++
		c.mutex.Unlock()
		c.log.Tracef("Dropped %s press inside debounce window", dir)
		if c.OnDropped != nil {
			c.OnDropped(dir, c.sessionID())
		}
		return Debounced
	}
	c.lastForwarded = now
	c.hasForwarded = true
	c.forwarded++
	c.wg.Add(1)
	c.mutex.Unlock()

	cmd := protocol.CreateMoveCommand(c.sessionID(), dir)
	go c.dispatch(cmd)
	return Forwarded
}

func (c *Controller) dispatch(cmd protocol.Command) {
	defer c.wg.Done()

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.sender.Send(ctx, cmd)
	if err != nil {
		c.mutex.Lock()
		c.failed++
		c.mutex.Unlock()
		c.log.Warnf("Move %s for session %d failed: %v", cmd.Direction, cmd.SessionID, err)
	} else {
		c.log.Debugf("Move %s for session %d sent (%s)", cmd.Direction, cmd.SessionID, cmd.ID)
	}

	if c.OnResult != nil {
		c.OnResult(cmd, err)
	}
}

// Wait blocks until every dispatched move has completed
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close rejects further presses, cancels in-flight sends and waits for
// them to return
func (c *Controller) Close() {
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()
	c.cancel()
	c.wg.Wait()
}

// GetStats returns controller statistics
func (c *Controller) GetStats() map[string]interface{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return map[string]interface{}{
		"forwarded":   c.forwarded,
		"dropped":     c.dropped,
		"failed":      c.failed,
		"debounce_ms": c.debounce.Milliseconds(),
	}
}
