// Package game wires the poller, state, session selector and input
// controller into the lifetime of one mounted game view
package game

import (
	"context"
	"errors"
	"sync"

	"github.com/decred/slog"
	"github.com/pacroyale/viewer/internal/config"
	"github.com/pacroyale/viewer/logging"
	"github.com/pacroyale/viewer/pkg/cache"
	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/input"
	"github.com/pacroyale/viewer/pkg/outcome"
	"github.com/pacroyale/viewer/pkg/poller"
	"github.com/pacroyale/viewer/pkg/protocol"
	"github.com/pacroyale/viewer/pkg/session"
	"github.com/pacroyale/viewer/pkg/snapshot"
	"github.com/pacroyale/viewer/pkg/state"
)

// updateBuffer is the capacity of the poller to event loop channel
const updateBuffer = 64

// View owns every per-view component. Updates are applied by a single
// event loop goroutine; listeners are called from it.
type View struct {
	selector *session.Selector
	poller   *poller.Poller
	state    *state.ViewState
	input    *input.Controller
	sender   session.CommandSender
	events   *logging.ViewerLogger
	log      slog.Logger

	updates chan poller.Update

	// Lifetime control
	mutex    sync.Mutex
	mounted  bool
	stopLoop context.CancelFunc
	loopDone chan struct{}

	listenerMutex sync.RWMutex
	onRender      []func(state.RenderState)
	onDeath       []func(sessionID int64, slot int)
	onOutcome     []func(sessionID int64, o outcome.Outcome)
}

// NewView builds a view reading through reader and writing through sender
func NewView(cfg *config.ViewerConfig, reader poller.GameReader, sender session.CommandSender, events *logging.ViewerLogger) *View {
	var (
		viewLog  = slog.Disabled
		pollLog  = slog.Disabled
		sessLog  = slog.Disabled
		outLog   = slog.Disabled
		inputLog = slog.Disabled
	)
	if events != nil {
		viewLog = events.Subsystem(logging.TagView)
		pollLog = events.Subsystem(logging.TagPoll)
		sessLog = events.Subsystem(logging.TagSession)
		outLog = events.Subsystem(logging.TagOutcome)
		inputLog = events.Subsystem(logging.TagInput)
	}

	updates := make(chan poller.Update, updateBuffer)
	intervals := poller.Intervals{
		Board:      cfg.BoardInterval,
		Positions:  cfg.PositionsInterval,
		TopSession: cfg.TopSessionInterval,
		Winner:     cfg.WinnerInterval,
	}

	v := &View{
		selector: session.NewSelector(session.MinSessionID, sessLog),
		poller:   poller.NewPoller(reader, snapshot.NewDecoder(cfg.GridSize, cfg.LengthPrefixed), intervals, updates, pollLog),
		state: state.NewViewState(cfg.ViewerID, cfg.PlayerAddress,
			outcome.NewDetector(outLog), cache.NewBoardCache(cfg.BoardCacheSize), events),
		sender:  sender,
		events:  events,
		log:     viewLog,
		updates: updates,
	}
	v.input = input.NewController(sender, v.selector.Current, cfg.MoveDebounce, cfg.RequestTimeout, inputLog)
	if events != nil {
		v.input.OnResult = func(cmd protocol.Command, err error) {
			events.LogCommand(string(cmd.Type), cmd.ID.String(), err)
		}
		v.input.OnDropped = func(dir protocol.Direction, sessionID int64) {
			events.LogCommandDropped(dir.String(), sessionID)
		}
		v.poller.OnFault = func(r poller.Resource, sessionID int64, err error) {
			if errors.Is(err, faults.ErrDecode) {
				events.LogDecodeFault(string(r), sessionID, err)
				return
			}
			events.LogPollFailure(string(r), sessionID, err)
		}
	}
	return v
}

// OnRender registers a listener called with the render state after every
// applied update
func (v *View) OnRender(fn func(state.RenderState)) {
	v.listenerMutex.Lock()
	defer v.listenerMutex.Unlock()
	v.onRender = append(v.onRender, fn)
}

// OnDeath registers a listener called once per death edge
func (v *View) OnDeath(fn func(sessionID int64, slot int)) {
	v.listenerMutex.Lock()
	defer v.listenerMutex.Unlock()
	v.onDeath = append(v.onDeath, fn)
}

// OnOutcome registers a listener called once when a session is decided
func (v *View) OnOutcome(fn func(sessionID int64, o outcome.Outcome)) {
	v.listenerMutex.Lock()
	defer v.listenerMutex.Unlock()
	v.onOutcome = append(v.onOutcome, fn)
}

// Mount starts the event loop and polling of the selected session
func (v *View) Mount() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if v.mounted {
		return
	}
	v.mounted = true

	ctx, cancel := context.WithCancel(context.Background())
	v.stopLoop = cancel
	v.loopDone = make(chan struct{})
	go v.eventLoop(ctx, v.loopDone)

	id := v.selector.Current()
	v.poller.Start(id, v.state.Reset(id))
	v.log.Infof("View mounted on session %d", id)
}

// Unmount stops polling and the event loop. Updates still in flight are
// dropped.
func (v *View) Unmount() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if !v.mounted {
		return
	}
	v.mounted = false

	v.poller.Stop()
	v.stopLoop()
	<-v.loopDone
	v.log.Infof("View unmounted")
}

// Close unmounts the view and waits for outstanding commands
func (v *View) Close() {
	v.Unmount()
	v.input.Close()
}

// IsMounted reports whether the view is active
func (v *View) IsMounted() bool {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.mounted
}

func (v *View) eventLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case u := <-v.updates:
			v.handle(u)
		case <-ctx.Done():
			return
		}
	}
}

func (v *View) handle(u poller.Update) {
	fx, ok := v.state.Apply(u)
	if !ok {
		return
	}
	if u.Resource == poller.ResourceTopSession {
		v.selector.SetTop(u.TopSessionID)
	}

	v.listenerMutex.RLock()
	defer v.listenerMutex.RUnlock()

	for _, slot := range fx.Deaths {
		for _, fn := range v.onDeath {
			fn(u.SessionID, slot)
		}
	}
	if fx.Decided {
		for _, fn := range v.onOutcome {
			fn(u.SessionID, fx.Outcome)
		}
	}
	if len(v.onRender) > 0 {
		rs := v.render()
		for _, fn := range v.onRender {
			fn(rs)
		}
	}
}

// switchLocked points state and polling at the selector's current session
func (v *View) switchLocked() int64 {
	id := v.selector.Current()
	epoch := v.state.Reset(id)
	if v.mounted {
		v.poller.Start(id, epoch)
	}
	return id
}

// NextSession views the following session
func (v *View) NextSession() int64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.selector.Next()
	return v.switchLocked()
}

// PreviousSession views the preceding session, staying put at the minimum
func (v *View) PreviousSession() int64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	before := v.selector.Current()
	if v.selector.Previous() == before {
		return before
	}
	return v.switchLocked()
}

// SelectSession views an explicit session id
func (v *View) SelectSession(id int64) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if err := v.selector.Select(id); err != nil {
		return err
	}
	v.switchLocked()
	return nil
}

// CreateNextSession initialises the viewed session when it directly
// follows the newest one
func (v *View) CreateNextSession(ctx context.Context) error {
	err := v.selector.CreateNext(ctx, v.sender)
	if err != nil && v.events != nil {
		v.events.LogError("create_session", err)
	}
	return err
}

// Join adds the local player to the viewed session
func (v *View) Join(ctx context.Context) error {
	cmd := protocol.CreateAddPlayerCommand(v.selector.Current())
	err := v.sender.Send(ctx, cmd)
	if v.events != nil {
		v.events.LogCommand(string(cmd.Type), cmd.ID.String(), err)
	}
	return err
}

// PressKey forwards a key press to the input controller
func (v *View) PressKey(key string) input.Result {
	return v.input.Press(key)
}

// Move forwards an already mapped direction to the input controller
func (v *View) Move(dir protocol.Direction) input.Result {
	return v.input.PressDirection(dir)
}

// CurrentSession returns the viewed session id
func (v *View) CurrentSession() int64 {
	return v.selector.Current()
}

func (v *View) render() state.RenderState {
	rs := v.state.Render()
	rs.CanCreate = v.selector.CanCreateNext()
	return rs
}

// Render returns the current render state
func (v *View) Render() state.RenderState {
	return v.render()
}

// Input exposes the input controller, used by tests to inject a clock
func (v *View) Input() *input.Controller {
	return v.input
}

// GetStats returns statistics of every component
func (v *View) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"mounted": v.IsMounted(),
		"session": v.selector.GetStats(),
		"poller":  v.poller.GetStats(),
		"state":   v.state.GetStats(),
		"input":   v.input.GetStats(),
	}
}
