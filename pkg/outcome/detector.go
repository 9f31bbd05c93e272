// Package outcome decides when a session has ended and who won it
package outcome

import (
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/pacroyale/viewer/pkg/snapshot"
)

// Status of a session outcome
type Status string

const (
	StatusPending Status = "pending"
	StatusDecided Status = "decided"
)

// Outcome is the frozen result of a session. SlotIndex is 1-based for
// display and 0 while pending.
type Outcome struct {
	Status    Status `json:"status"`
	Winner    string `json:"winner,omitempty"`
	SlotIndex int    `json:"slot_index,omitempty"`
	Balance   uint64 `json:"balance,omitempty"`
}

// Decided reports whether the outcome is latched
func (o Outcome) Decided() bool { return o.Status == StatusDecided }

// WonBy reports whether address is the winner, compared as normalised hex
func (o Outcome) WonBy(address string) bool {
	if !o.Decided() || address == "" {
		return false
	}
	return normalise(o.Winner) == normalise(address)
}

func normalise(address string) string {
	a := strings.ToLower(strings.TrimSpace(address))
	a = strings.TrimPrefix(a, "0x")
	a = strings.TrimLeft(a, "0")
	return "0x" + a
}

// Detector latches the first decided outcome of a session
type Detector struct {
	outcome      Outcome
	winner       snapshot.Winner
	observations int64
	stallWarned  bool
	log          slog.Logger
	mutex        sync.RWMutex
}

// NewDetector creates a pending detector
func NewDetector(log slog.Logger) *Detector {
	if log == nil {
		log = slog.Disabled
	}
	return &Detector{outcome: Outcome{Status: StatusPending}, log: log}
}

// winningSlot returns the index of the slot with the highest positive
// balance, lowest index on ties. When every balance is zero it falls back
// to the lowest-index slot still alive.
func winningSlot(slots snapshot.PositionSnapshot) (int, bool) {
	best := -1
	for i, s := range slots {
		if s.Balance == 0 {
			continue
		}
		if best < 0 || s.Balance > slots[best].Balance {
			best = i
		}
	}
	if best >= 0 {
		return best, true
	}
	for i, s := range slots {
		if !s.Dead {
			return i, true
		}
	}
	return -1, false
}

// Observe feeds the latest winner read and reconciled slots. It returns
// the current outcome and whether this call decided it. A zero winner, or
// a winner with no slot that has a positive balance or is alive, leaves
// the outcome pending. Once decided, later calls return the frozen outcome
// unchanged.
func (d *Detector) Observe(winner snapshot.Winner, slots snapshot.PositionSnapshot) (Outcome, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.observations++
	if d.outcome.Decided() {
		return d.outcome, false
	}
	if winner.Decided() {
		d.winner = winner
	}
	if !d.winner.Decided() {
		return d.outcome, false
	}

	idx, ok := winningSlot(slots)
	if !ok {
		if !d.stallWarned {
			d.stallWarned = true
			d.log.Warnf("Winner %s reported but no slot qualifies (%d slots), outcome stays pending",
				d.winner.Address, len(slots))
		}
		return d.outcome, false
	}

	d.outcome = Outcome{
		Status:    StatusDecided,
		Winner:    d.winner.Address,
		SlotIndex: idx + 1,
		Balance:   slots[idx].Balance,
	}
	d.log.Infof("Session decided: winner %s in slot %d with balance %d",
		d.outcome.Winner, d.outcome.SlotIndex, d.outcome.Balance)
	return d.outcome, true
}

// Outcome returns the current outcome
func (d *Detector) Outcome() Outcome {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.outcome
}

// Reset returns the detector to pending, used on session change
func (d *Detector) Reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.outcome = Outcome{Status: StatusPending}
	d.winner = snapshot.Winner{}
	d.stallWarned = false
}

// GetStats returns detector statistics
func (d *Detector) GetStats() map[string]interface{} {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return map[string]interface{}{
		"status":       string(d.outcome.Status),
		"observations": d.observations,
	}
}
