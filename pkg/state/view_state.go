package state

import (
	"sync"
	"time"

	"github.com/pacroyale/viewer/logging"
	"github.com/pacroyale/viewer/pkg/cache"
	"github.com/pacroyale/viewer/pkg/outcome"
	"github.com/pacroyale/viewer/pkg/poller"
	"github.com/pacroyale/viewer/pkg/protocol"
	"github.com/pacroyale/viewer/pkg/reconcile"
	"github.com/pacroyale/viewer/pkg/snapshot"
)

// Effects are the one-shot events produced by applying an update
type Effects struct {
	Deaths    []int
	Collected []int
	Decided   bool
	Outcome   outcome.Outcome
}

// ViewState holds everything known about the viewed session. Updates are
// applied serially; renderers read immutable RenderState copies.
type ViewState struct {
	viewerID      string
	playerAddress string

	epoch        uint64
	sessionID    int64
	board        *snapshot.Board
	boardCached  bool
	positions    snapshot.PositionSnapshot
	topSessionID int64
	topKnown     bool
	winner       snapshot.Winner

	reconciler *reconcile.Reconciler
	detector   *outcome.Detector
	boards     *cache.BoardCache
	events     *logging.ViewerLogger

	applied     int64
	discarded   int64
	lastApplied int64

	// Concurrency control
	mutex sync.RWMutex
}

// NewViewState creates the state of one viewer. boards and events may be
// nil.
func NewViewState(viewerID, playerAddress string, detector *outcome.Detector, boards *cache.BoardCache, events *logging.ViewerLogger) *ViewState {
	if detector == nil {
		detector = outcome.NewDetector(nil)
	}
	return &ViewState{
		viewerID:      viewerID,
		playerAddress: playerAddress,
		reconciler:    reconcile.New(),
		detector:      detector,
		boards:        boards,
		events:        events,
	}
}

// Reset switches the state to a new session and returns the epoch that
// updates for it must carry. Positions, winner, reconciliation and outcome
// are cleared; the board is seeded from the cache when one is known.
func (vs *ViewState) Reset(sessionID int64) uint64 {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	from := vs.sessionID
	vs.epoch++
	vs.sessionID = sessionID
	vs.board = nil
	vs.boardCached = false
	vs.positions = nil
	vs.winner = snapshot.Winner{}
	vs.reconciler.Reset()
	vs.detector.Reset()

	if vs.boards != nil {
		if b, ok := vs.boards.Get(sessionID); ok {
			vs.board = &b
			vs.boardCached = true
		}
	}

	if vs.events != nil {
		vs.events.LogSessionChange(from, sessionID, vs.epoch)
	}
	return vs.epoch
}

// Epoch returns the current epoch
func (vs *ViewState) Epoch() uint64 {
	vs.mutex.RLock()
	defer vs.mutex.RUnlock()
	return vs.epoch
}

// Apply applies one poll update. Updates from an older epoch are dropped
// and reported as not applied.
func (vs *ViewState) Apply(u poller.Update) (Effects, bool) {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	var fx Effects
	if u.Epoch != vs.epoch || (u.Resource != poller.ResourceTopSession && u.SessionID != vs.sessionID) {
		vs.discarded++
		if vs.events != nil {
			vs.events.LogSnapshotDiscarded(string(u.Resource), u.Epoch, vs.epoch)
		}
		return fx, false
	}

	switch u.Resource {
	case poller.ResourceBoard:
		if u.Board == nil {
			return fx, false
		}
		b := *u.Board
		vs.board = &b
		vs.boardCached = false
		if vs.boards != nil {
			vs.boards.Put(vs.sessionID, b)
		}

	case poller.ResourcePositions:
		vs.positions = u.Positions.Clone()
		res := vs.reconciler.Reconcile(vs.board, vs.positions)
		fx.Deaths = res.Deaths
		fx.Collected = res.Collected
		for _, slot := range res.Deaths {
			if vs.events != nil {
				vs.events.LogDeath(vs.sessionID, slot)
			}
		}
		fx.Outcome, fx.Decided = vs.detector.Observe(vs.winner, vs.positions)

	case poller.ResourceTopSession:
		vs.topSessionID = u.TopSessionID
		vs.topKnown = true

	case poller.ResourceWinner:
		if u.Winner.Decided() {
			vs.winner = u.Winner
		}
		fx.Outcome, fx.Decided = vs.detector.Observe(u.Winner, vs.positions)
	}

	if fx.Decided && vs.events != nil {
		vs.events.LogOutcome(vs.sessionID, fx.Outcome.Winner, fx.Outcome.SlotIndex, fx.Outcome.Balance)
	}

	vs.applied++
	vs.lastApplied = time.Now().UnixMilli()
	if vs.events != nil {
		vs.events.LogSnapshotApplied(string(u.Resource), vs.sessionID, vs.epoch)
	}
	return fx, true
}

// PlayerView is one slot as a renderer sees it
type PlayerView struct {
	Slot int `json:"slot"`
	snapshot.PlayerSlot
	Facing    string             `json:"facing,omitempty"`
	Direction protocol.Direction `json:"-"`
	HasFacing bool               `json:"-"`
}

// RenderState is an immutable copy of the view for renderers
type RenderState struct {
	ViewerID     string          `json:"viewer_id"`
	SessionID    int64           `json:"session_id"`
	TopSessionID int64           `json:"top_session_id"`
	Epoch        uint64          `json:"epoch"`
	GridSize     int             `json:"grid_size"`
	Cells        []snapshot.Cell `json:"cells"`
	BoardStale   bool            `json:"board_stale"`
	Players      []PlayerView    `json:"players"`
	Collected    int             `json:"collected"`
	Outcome      outcome.Outcome `json:"outcome"`
	IsWinner     bool            `json:"is_winner"`
	CanCreate    bool            `json:"can_create_next"`
	Timestamp    int64           `json:"timestamp"`
}

// CellAt returns the rendered cell at (x, y), Empty when out of range
func (rs RenderState) CellAt(x, y int) snapshot.Cell {
	if x < 0 || y < 0 || x >= rs.GridSize || y >= rs.GridSize {
		return snapshot.CellEmpty
	}
	idx := y*rs.GridSize + x
	if idx >= len(rs.Cells) {
		return snapshot.CellEmpty
	}
	return rs.Cells[idx]
}

// Render builds a RenderState. Collected pellets are rendered as empty
// cells; the stored board is left untouched.
func (vs *ViewState) Render() RenderState {
	vs.mutex.RLock()
	defer vs.mutex.RUnlock()

	rs := RenderState{
		ViewerID:     vs.viewerID,
		SessionID:    vs.sessionID,
		TopSessionID: vs.topSessionID,
		Epoch:        vs.epoch,
		BoardStale:   vs.boardCached,
		Collected:    len(vs.reconciler.CollectedIndices()),
		Outcome:      vs.detector.Outcome(),
		CanCreate:    vs.topKnown && vs.sessionID == vs.topSessionID+1,
		Timestamp:    time.Now().UnixMilli(),
	}
	rs.IsWinner = rs.Outcome.WonBy(vs.playerAddress)

	if vs.board != nil {
		rs.GridSize = vs.board.Size()
		rs.Cells = vs.board.Cells()
		for i, c := range rs.Cells {
			if c == snapshot.CellPellet && !vs.reconciler.PelletVisible(*vs.board, i) {
				rs.Cells[i] = snapshot.CellEmpty
			}
		}
	}

	rs.Players = make([]PlayerView, 0, len(vs.positions))
	for i, p := range vs.positions {
		pv := PlayerView{Slot: i, PlayerSlot: p}
		if dir, ok := vs.reconciler.Facing(i); ok {
			pv.Direction = dir
			pv.HasFacing = true
			pv.Facing = dir.String()
		}
		rs.Players = append(rs.Players, pv)
	}
	return rs
}

// Positions returns a copy of the last applied positions
func (vs *ViewState) Positions() snapshot.PositionSnapshot {
	vs.mutex.RLock()
	defer vs.mutex.RUnlock()
	return vs.positions.Clone()
}

// TopSessionID returns the last applied top session id
func (vs *ViewState) TopSessionID() int64 {
	vs.mutex.RLock()
	defer vs.mutex.RUnlock()
	return vs.topSessionID
}

// GetStats returns statistics about the state
func (vs *ViewState) GetStats() map[string]interface{} {
	vs.mutex.RLock()
	defer vs.mutex.RUnlock()

	stats := map[string]interface{}{
		"viewer_id":       vs.viewerID,
		"session_id":      vs.sessionID,
		"epoch":           vs.epoch,
		"applied":         vs.applied,
		"discarded":       vs.discarded,
		"last_applied_ms": vs.lastApplied,
		"has_board":       vs.board != nil,
		"board_cached":    vs.boardCached,
		"players":         len(vs.positions),
		"reconciler":      vs.reconciler.GetStats(),
		"outcome":         vs.detector.GetStats(),
	}
	if vs.boards != nil {
		stats["board_cache"] = vs.boards.GetStats()
	}
	return stats
}

// GetViewerID returns the viewer ID
func (vs *ViewState) GetViewerID() string {
	return vs.viewerID
}
