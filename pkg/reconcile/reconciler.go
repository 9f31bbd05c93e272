// Package reconcile derives facts the raw snapshots do not carry by
// diffing consecutive position snapshots: facing direction, death edges
// and collected pellets.
package reconcile

import (
	"sort"

	"github.com/pacroyale/viewer/pkg/protocol"
	"github.com/pacroyale/viewer/pkg/snapshot"
)

// Result is what one reconciliation pass produced
type Result struct {
	Deaths    []int // slots whose dead flag rose this pass, ascending
	Collected []int // board indices newly added to the collected set, ascending
	Turned    []int // slots whose facing changed this pass, ascending
}

// Reconciler owns the previous-position map, the per-slot facing and the
// collected set of one session. It is not safe for concurrent use; the
// view applies snapshots from a single goroutine.
type Reconciler struct {
	previous  map[int]snapshot.PlayerSlot
	facing    map[int]protocol.Direction
	collected map[int]struct{}
	passes    int64
}

// New creates an empty reconciler
func New() *Reconciler {
	return &Reconciler{
		previous:  make(map[int]snapshot.PlayerSlot),
		facing:    make(map[int]protocol.Direction),
		collected: make(map[int]struct{}),
	}
}

// Reset forgets everything, used when the viewed session changes
func (r *Reconciler) Reset() {
	r.previous = make(map[int]snapshot.PlayerSlot)
	r.facing = make(map[int]protocol.Direction)
	r.collected = make(map[int]struct{})
	r.passes = 0
}

// directionOf returns the direction of a move by (dx, dy). The x axis is
// checked first; false means no movement.
func directionOf(dx, dy int) (protocol.Direction, bool) {
	switch {
	case dx > 0:
		return protocol.Right, true
	case dx < 0:
		return protocol.Left, true
	case dy > 0:
		return protocol.Down, true
	case dy < 0:
		return protocol.Up, true
	}
	return 0, false
}

// Reconcile diffs next against the previous snapshot. board may be nil when
// no map has been decoded yet, in which case nothing is collected.
func (r *Reconciler) Reconcile(board *snapshot.Board, next snapshot.PositionSnapshot) Result {
	var res Result
	r.passes++

	for slot, cur := range next {
		prev, seen := r.previous[slot]

		if seen {
			if dir, moved := directionOf(cur.X-prev.X, cur.Y-prev.Y); moved {
				if old, ok := r.facing[slot]; !ok || old != dir {
					res.Turned = append(res.Turned, slot)
				}
				r.facing[slot] = dir
			}
		}

		if cur.Dead && (!seen || !prev.Dead) {
			res.Deaths = append(res.Deaths, slot)
		}

		r.previous[slot] = cur

		if board != nil && board.At(cur.X, cur.Y) == snapshot.CellPellet {
			idx := board.Index(cur.X, cur.Y)
			if _, done := r.collected[idx]; !done {
				r.collected[idx] = struct{}{}
				res.Collected = append(res.Collected, idx)
			}
		}
	}

	sort.Ints(res.Collected)
	return res
}

// Facing returns the last direction slot moved in
func (r *Reconciler) Facing(slot int) (protocol.Direction, bool) {
	d, ok := r.facing[slot]
	return d, ok
}

// Previous returns the last position recorded for slot
func (r *Reconciler) Previous(slot int) (snapshot.PlayerSlot, bool) {
	p, ok := r.previous[slot]
	return p, ok
}

// Collected reports whether the pellet at index has been eaten
func (r *Reconciler) Collected(index int) bool {
	_, ok := r.collected[index]
	return ok
}

// CollectedIndices returns the collected set in ascending order
func (r *Reconciler) CollectedIndices() []int {
	out := make([]int, 0, len(r.collected))
	for idx := range r.collected {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// PelletVisible reports whether a pellet should still be drawn at index.
// The board itself is never changed, only the collected set is consulted.
func (r *Reconciler) PelletVisible(board snapshot.Board, index int) bool {
	return board.CellAt(index) == snapshot.CellPellet && !r.Collected(index)
}

// GetStats returns reconciler statistics
func (r *Reconciler) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"passes":          r.passes,
		"tracked_slots":   len(r.previous),
		"collected_count": len(r.collected),
	}
}
