package snapshot

import "fmt"

// FieldsPerPlayer is the group size of one player in a positions read:
// x, y, powered-up flag, dead flag, balance
const FieldsPerPlayer = 5

// PlayerSlot is one positional entry of a positions snapshot
type PlayerSlot struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	PoweredUp bool   `json:"powered_up"`
	Dead      bool   `json:"dead"`
	Balance   uint64 `json:"balance"`
}

func (p PlayerSlot) String() string {
	return fmt.Sprintf("(%d,%d) pu=%t dead=%t bal=%d", p.X, p.Y, p.PoweredUp, p.Dead, p.Balance)
}

// PositionSnapshot is the ordered list of slots of one poll. Slot index is
// array order.
type PositionSnapshot []PlayerSlot

// Slot returns the slot at index, false when absent
func (ps PositionSnapshot) Slot(index int) (PlayerSlot, bool) {
	if index < 0 || index >= len(ps) {
		return PlayerSlot{}, false
	}
	return ps[index], true
}

// Clone returns an independent copy
func (ps PositionSnapshot) Clone() PositionSnapshot {
	if ps == nil {
		return nil
	}
	out := make(PositionSnapshot, len(ps))
	copy(out, ps)
	return out
}

// Winner is the decoded result of a winner read. A zero result decodes to
// the empty Winner, meaning no winner yet.
type Winner struct {
	Address string `json:"address,omitempty"`
}

// Decided reports whether the read named a winner
func (w Winner) Decided() bool { return w.Address != "" }
