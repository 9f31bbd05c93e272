package input

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pacroyale/viewer/pkg/protocol"
)

// MockSender records sent commands
type MockSender struct {
	mutex    sync.Mutex
	commands []protocol.Command
	err      error
	block    chan struct{}
}

func (m *MockSender) Send(ctx context.Context, cmd protocol.Command) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.commands = append(m.commands, cmd)
	return m.err
}

func (m *MockSender) Commands() []protocol.Command {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]protocol.Command(nil), m.commands...)
}

// fakeClock is advanced by hand
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestController(sender Sender) (*Controller, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	c := NewController(sender, func() int64 { return 4 }, 350*time.Millisecond, time.Second, nil)
	c.SetClock(clock.Now)
	return c, clock
}

func TestController_GlobalDebounce(t *testing.T) {
	sender := &MockSender{}
	c, clock := newTestController(sender)

	if r := c.Press("ArrowUp"); r != Forwarded {
		t.Errorf("t=0 should forward, got %s", r)
	}
	clock.Advance(100 * time.Millisecond)
	if r := c.Press("ArrowLeft"); r != Debounced {
		t.Errorf("t=100ms should be dropped regardless of key, got %s", r)
	}
	clock.Advance(300 * time.Millisecond)
	if r := c.Press("ArrowDown"); r != Forwarded {
		t.Errorf("t=400ms should forward, got %s", r)
	}
	c.Wait()

	cmds := sender.Commands()
	if len(cmds) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(cmds))
	}
	dirs := map[protocol.Direction]bool{}
	for _, cmd := range cmds {
		dirs[cmd.Direction] = true
		if cmd.Type != protocol.MoveType || cmd.SessionID != 4 {
			t.Errorf("Unexpected command %+v", cmd)
		}
	}
	if !dirs[protocol.Up] || !dirs[protocol.Down] || dirs[protocol.Left] {
		t.Errorf("Expected Up and Down to be forwarded, got %v", dirs)
	}

	stats := c.GetStats()
	if stats["forwarded"].(int64) != 2 || stats["dropped"].(int64) != 1 {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestController_WindowMeasuredFromLastForwarded(t *testing.T) {
	sender := &MockSender{}
	c, clock := newTestController(sender)

	c.Press("up")
	// dropped presses do not extend the window
	for i := 0; i < 3; i++ {
		clock.Advance(100 * time.Millisecond)
		c.Press("up")
	}
	clock.Advance(50 * time.Millisecond)
	if r := c.Press("up"); r != Forwarded {
		t.Errorf("Press 350ms after the last forward should pass, got %s", r)
	}
	c.Wait()

	if n := len(sender.Commands()); n != 2 {
		t.Errorf("Expected 2 commands, got %d", n)
	}
}

func TestController_DroppedPressReported(t *testing.T) {
	sender := &MockSender{}
	c, clock := newTestController(sender)

	var dropped []protocol.Direction
	c.OnDropped = func(dir protocol.Direction, sessionID int64) {
		if sessionID != 4 {
			t.Errorf("Expected session 4, got %d", sessionID)
		}
		dropped = append(dropped, dir)
	}

	c.Press("ArrowUp")
	clock.Advance(100 * time.Millisecond)
	c.Press("ArrowLeft")
	c.Wait()

	if len(dropped) != 1 || dropped[0] != protocol.Left {
		t.Errorf("Expected one dropped Left press, got %v", dropped)
	}
}

func TestController_UnknownKey(t *testing.T) {
	sender := &MockSender{}
	c, _ := newTestController(sender)

	if r := c.Press("Space"); r != UnknownKey {
		t.Errorf("Expected unknown key, got %s", r)
	}
	// an ignored key does not open a debounce window
	if r := c.Press("ArrowRight"); r != Forwarded {
		t.Errorf("Expected forward after ignored key, got %s", r)
	}
	c.Wait()
}

func TestController_SendFailureReported(t *testing.T) {
	sender := &MockSender{err: errors.New("relay down")}
	c, _ := newTestController(sender)

	var mutex sync.Mutex
	var results []error
	c.OnResult = func(cmd protocol.Command, err error) {
		mutex.Lock()
		defer mutex.Unlock()
		results = append(results, err)
	}

	c.Press("ArrowUp")
	c.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	if len(results) != 1 || results[0] == nil {
		t.Errorf("Expected one failed result, got %v", results)
	}
	if c.GetStats()["failed"].(int64) != 1 {
		t.Error("Failure should be counted")
	}
}

func TestController_PressDoesNotBlockOnSend(t *testing.T) {
	sender := &MockSender{block: make(chan struct{})}
	c, _ := newTestController(sender)

	done := make(chan Result, 1)
	go func() { done <- c.Press("ArrowUp") }()

	select {
	case r := <-done:
		if r != Forwarded {
			t.Errorf("Expected forwarded, got %s", r)
		}
	case <-time.After(time.Second):
		t.Fatal("Press blocked on the outbound send")
	}

	close(sender.block)
	c.Wait()
}

func TestController_CloseCancelsInFlight(t *testing.T) {
	sender := &MockSender{block: make(chan struct{})}
	c, clock := newTestController(sender)

	c.Press("ArrowUp")
	c.Close()

	clock.Advance(time.Second)
	if r := c.Press("ArrowUp"); r != Closed {
		t.Errorf("Closed controller should reject presses, got %s", r)
	}
	if n := len(sender.Commands()); n != 0 {
		t.Errorf("Cancelled send should not be recorded, got %d", n)
	}
}

func TestDirectionForKey(t *testing.T) {
	cases := map[string]protocol.Direction{
		"ArrowUp":    protocol.Up,
		"ArrowDown":  protocol.Down,
		"ArrowLeft":  protocol.Left,
		"ArrowRight": protocol.Right,
		" right ":    protocol.Right,
	}
	for key, want := range cases {
		got, ok := DirectionForKey(key)
		if !ok || got != want {
			t.Errorf("%q: expected %v, got %v (%v)", key, want, got, ok)
		}
	}
}
