package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pacroyale/viewer/internal/config"
	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/input"
	"github.com/pacroyale/viewer/pkg/outcome"
	"github.com/pacroyale/viewer/pkg/protocol"
	"github.com/pacroyale/viewer/pkg/sim"
	"github.com/pacroyale/viewer/pkg/state"
)

const localPlayer = "0xa11ce"

func testConfig() *config.ViewerConfig {
	cfg := config.DefaultConfig()
	cfg.GridSize = 7
	cfg.PlayerAddress = localPlayer
	cfg.BoardInterval = 10 * time.Millisecond
	cfg.PositionsInterval = 10 * time.Millisecond
	cfg.TopSessionInterval = 10 * time.Millisecond
	cfg.WinnerInterval = 10 * time.Millisecond
	cfg.RequestTimeout = time.Second
	cfg.Simulate = true
	return cfg
}

func waitRender(t *testing.T, v *View, cond func(state.RenderState) bool) state.RenderState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rs := v.Render()
		if cond(rs) {
			return rs
		}
		if time.Now().After(deadline) {
			t.Fatalf("Render state never matched, last: %+v", rs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestView_FollowsSimulatedGame(t *testing.T) {
	svc := sim.NewService(7, localPlayer, 1, nil)
	id := svc.InitSession()
	svc.AddPlayer(id, "0xa")
	svc.AddPlayer(id, "0xb")

	// 0xa picks up the power pellet at (1,1) and catches 0xb at (2,3)
	svc.Move(id, "0xa", protocol.Up)
	svc.Move(id, "0xa", protocol.Up)
	for i := 0; i < 3; i++ {
		svc.Move(id, "0xb", protocol.Left)
	}
	svc.Move(id, "0xa", protocol.Down)
	svc.Move(id, "0xa", protocol.Down)
	svc.Move(id, "0xa", protocol.Right)

	v := NewView(testConfig(), svc, svc, nil)

	var mutex sync.Mutex
	var deaths []int
	var outcomes []outcome.Outcome
	v.OnDeath(func(sessionID int64, slot int) {
		mutex.Lock()
		defer mutex.Unlock()
		deaths = append(deaths, slot)
	})
	v.OnOutcome(func(sessionID int64, o outcome.Outcome) {
		mutex.Lock()
		defer mutex.Unlock()
		outcomes = append(outcomes, o)
	})

	v.Mount()
	defer v.Close()

	rs := waitRender(t, v, func(rs state.RenderState) bool { return rs.Outcome.Decided() })
	if rs.Outcome.Winner != "0xa" || rs.Outcome.SlotIndex != 1 || rs.Outcome.Balance != 5 {
		t.Errorf("Expected 0xa in slot 1 with 5, got %+v", rs.Outcome)
	}
	if rs.IsWinner {
		t.Error("Local player did not win")
	}

	// let a few more ticks run so repeated reads would show up
	time.Sleep(50 * time.Millisecond)

	mutex.Lock()
	defer mutex.Unlock()
	if len(deaths) != 1 || deaths[0] != 1 {
		t.Errorf("Expected exactly one death for slot 1, got %v", deaths)
	}
	if len(outcomes) != 1 {
		t.Errorf("Expected exactly one outcome event, got %d", len(outcomes))
	}
}

func TestView_KeyPressReachesService(t *testing.T) {
	svc := sim.NewService(7, localPlayer, 1, nil)
	id := svc.InitSession()

	v := NewView(testConfig(), svc, svc, nil)
	v.Mount()
	defer v.Close()

	if err := v.Join(context.Background()); err != nil {
		t.Fatalf("Join should succeed: %v", err)
	}
	start := waitRender(t, v, func(rs state.RenderState) bool { return len(rs.Players) == 1 })
	if start.SessionID != id {
		t.Errorf("Expected session %d, got %d", id, start.SessionID)
	}

	if r := v.PressKey("ArrowUp"); r != input.Forwarded {
		t.Fatalf("Expected forwarded, got %s", r)
	}
	if r := v.PressKey("ArrowUp"); r != input.Debounced {
		t.Errorf("Second press inside the window should be dropped, got %s", r)
	}

	moved := waitRender(t, v, func(rs state.RenderState) bool {
		return len(rs.Players) == 1 && rs.Players[0].Y == start.Players[0].Y-1
	})
	if !moved.Players[0].HasFacing || moved.Players[0].Direction != protocol.Up {
		t.Errorf("Player should face up, got %+v", moved.Players[0])
	}
}

func TestView_SessionNavigation(t *testing.T) {
	svc := sim.NewService(7, localPlayer, 1, nil)
	svc.InitSession()

	v := NewView(testConfig(), svc, svc, nil)
	v.Mount()
	defer v.Close()

	waitRender(t, v, func(rs state.RenderState) bool { return rs.TopSessionID == 1 })

	if got := v.PreviousSession(); got != 1 {
		t.Errorf("Previous at session 1 should stay, got %d", got)
	}
	if err := v.SelectSession(0); !errors.Is(err, faults.ErrInvariant) {
		t.Errorf("Session 0 should be rejected, got %v", err)
	}

	err := v.CreateNextSession(context.Background())
	if !errors.Is(err, faults.ErrInvariant) {
		t.Errorf("Creating session 1 when top is 1 should be rejected, got %v", err)
	}

	if got := v.NextSession(); got != 2 {
		t.Fatalf("Expected session 2, got %d", got)
	}
	rs := waitRender(t, v, func(rs state.RenderState) bool { return rs.SessionID == 2 && rs.CanCreate })
	if len(rs.Players) != 0 {
		t.Errorf("Uninitialised session should have no players, got %v", rs.Players)
	}

	if err := v.CreateNextSession(context.Background()); err != nil {
		t.Fatalf("Creating session 2 should succeed: %v", err)
	}
	waitRender(t, v, func(rs state.RenderState) bool { return rs.TopSessionID == 2 && !rs.CanCreate })
}

func TestView_UnmountStopsPolling(t *testing.T) {
	svc := sim.NewService(7, localPlayer, 1, nil)
	svc.InitSession()

	v := NewView(testConfig(), svc, svc, nil)
	v.Mount()
	v.Mount()
	waitRender(t, v, func(rs state.RenderState) bool { return rs.Cells != nil })
	v.Unmount()
	v.Unmount()

	if v.IsMounted() {
		t.Error("View should not be mounted")
	}
	reads := svc.GetStats()["reads"].(int64)
	time.Sleep(40 * time.Millisecond)
	if after := svc.GetStats()["reads"].(int64); after != reads {
		t.Errorf("Unmounted view kept polling: %d reads, then %d", reads, after)
	}

	poll := v.GetStats()["poller"].(map[string]interface{})
	if poll["starts"].(int64) != poll["stops"].(int64) {
		t.Errorf("Every start needs a stop: %v/%v", poll["starts"], poll["stops"])
	}
	v.Close()
}
