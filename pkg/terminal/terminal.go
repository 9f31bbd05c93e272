// Package terminal draws the render state with tcell and turns key presses
// into view actions
package terminal

import (
	"context"
	"fmt"
	"sync"

	"github.com/decred/slog"
	"github.com/gdamore/tcell/v2"
	"github.com/pacroyale/viewer/pkg/input"
	"github.com/pacroyale/viewer/pkg/protocol"
	"github.com/pacroyale/viewer/pkg/snapshot"
	"github.com/pacroyale/viewer/pkg/state"
)

// Controls is what the keyboard drives
type Controls interface {
	PressKey(key string) input.Result
	NextSession() int64
	PreviousSession() int64
	CreateNextSession(ctx context.Context) error
	Join(ctx context.Context) error
}

var (
	styleWall    = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	stylePellet  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	stylePower   = tcell.StyleDefault.Foreground(tcell.ColorFuchsia)
	stylePlayer  = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	stylePowered = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	styleDead    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleStatus  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleWinner  = tcell.StyleDefault.Foreground(tcell.ColorGreen)
)

// Terminal renders onto a tcell screen
type Terminal struct {
	screen   tcell.Screen
	controls Controls
	log      slog.Logger

	mutex   sync.Mutex
	last    *state.RenderState
	message string
}

// New creates a terminal on an initialised screen
func New(screen tcell.Screen, controls Controls, log slog.Logger) *Terminal {
	if log == nil {
		log = slog.Disabled
	}
	return &Terminal{screen: screen, controls: controls, log: log}
}

// Glyph returns the rune drawn for a cell
func Glyph(c snapshot.Cell) rune {
	switch c {
	case snapshot.CellWall:
		return '#'
	case snapshot.CellPellet:
		return '.'
	case snapshot.CellPowerPellet:
		return 'o'
	default:
		return ' '
	}
}

// PlayerGlyph returns the rune drawn for a player
func PlayerGlyph(p state.PlayerView) rune {
	if p.Dead {
		return 'x'
	}
	if !p.HasFacing {
		return '@'
	}
	switch p.Direction {
	case protocol.Up:
		return '^'
	case protocol.Down:
		return 'v'
	case protocol.Left:
		return '<'
	default:
		return '>'
	}
}

// Draw stores rs and repaints
func (t *Terminal) Draw(rs state.RenderState) {
	t.mutex.Lock()
	t.last = &rs
	msg := t.message
	t.mutex.Unlock()
	t.paint(rs, msg)
}

// Notify shows a one-line message under the status line
func (t *Terminal) Notify(format string, args ...interface{}) {
	t.mutex.Lock()
	t.message = fmt.Sprintf(format, args...)
	last := t.last
	msg := t.message
	t.mutex.Unlock()
	if last != nil {
		t.paint(*last, msg)
	}
}

func (t *Terminal) put(x, y int, s string, style tcell.Style) {
	for i, r := range []rune(s) {
		t.screen.SetContent(x+i, y, r, nil, style)
	}
}

func (t *Terminal) paint(rs state.RenderState, message string) {
	t.screen.Clear()

	for y := 0; y < rs.GridSize; y++ {
		for x := 0; x < rs.GridSize; x++ {
			c := rs.CellAt(x, y)
			style := stylePellet
			switch c {
			case snapshot.CellWall:
				style = styleWall
			case snapshot.CellPowerPellet:
				style = stylePower
			}
			t.screen.SetContent(x, y, Glyph(c), nil, style)
		}
	}

	for _, p := range rs.Players {
		style := stylePlayer
		switch {
		case p.Dead:
			style = styleDead
		case p.PoweredUp:
			style = stylePowered
		}
		t.screen.SetContent(p.X, p.Y, PlayerGlyph(p), nil, style)
	}

	row := rs.GridSize + 1
	t.put(0, row, StatusLine(rs), styleStatus)
	if rs.Outcome.Decided() {
		style := styleStatus
		if rs.IsWinner {
			style = styleWinner
		}
		t.put(0, row+1, OutcomeLine(rs), style)
	}
	if message != "" {
		t.put(0, row+2, message, styleStatus)
	}
	t.screen.Show()
}

// StatusLine summarises the session
func StatusLine(rs state.RenderState) string {
	line := fmt.Sprintf("session %d (newest %d)  players %d  eaten %d",
		rs.SessionID, rs.TopSessionID, len(rs.Players), rs.Collected)
	if rs.CanCreate {
		line += "  [c] create"
	}
	if rs.BoardStale {
		line += "  (cached map)"
	}
	return line
}

// OutcomeLine describes a decided session
func OutcomeLine(rs state.RenderState) string {
	o := rs.Outcome
	if !o.Decided() {
		return "in progress"
	}
	if rs.IsWinner {
		return fmt.Sprintf("You won! slot %d with %d tokens", o.SlotIndex, o.Balance)
	}
	return fmt.Sprintf("Winner %s (slot %d, %d tokens)", o.Winner, o.SlotIndex, o.Balance)
}

// keyNames maps tcell arrow keys to input key identifiers
var keyNames = map[tcell.Key]string{
	tcell.KeyUp:    "ArrowUp",
	tcell.KeyDown:  "ArrowDown",
	tcell.KeyLeft:  "ArrowLeft",
	tcell.KeyRight: "ArrowRight",
}

// handleKey runs the action bound to ev and reports whether to quit
func (t *Terminal) handleKey(ctx context.Context, ev *tcell.EventKey) bool {
	if name, ok := keyNames[ev.Key()]; ok {
		if r := t.controls.PressKey(name); r != input.Forwarded {
			t.log.Tracef("Key %s: %s", name, r)
		}
		return false
	}

	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
	default:
		return false
	}

	switch ev.Rune() {
	case 'q':
		return true
	case 'n':
		t.Notify("viewing session %d", t.controls.NextSession())
	case 'p':
		t.Notify("viewing session %d", t.controls.PreviousSession())
	case 'c':
		if err := t.controls.CreateNextSession(ctx); err != nil {
			t.Notify("create failed: %v", err)
		} else {
			t.Notify("session creation requested")
		}
	case 'j':
		if err := t.controls.Join(ctx); err != nil {
			t.Notify("join failed: %v", err)
		} else {
			t.Notify("join requested")
		}
	}
	return false
}

// Run processes screen events until quit is pressed or ctx is done
func (t *Terminal) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			t.screen.PostEvent(tcell.NewEventInterrupt(nil))
		case <-stop:
		}
	}()

	for {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			if ctx.Err() != nil {
				return nil
			}
		case *tcell.EventResize:
			t.screen.Sync()
		case *tcell.EventKey:
			if t.handleKey(ctx, ev) {
				return nil
			}
		}
	}
}
