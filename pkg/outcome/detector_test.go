package outcome

import (
	"testing"

	"github.com/pacroyale/viewer/pkg/snapshot"
)

func slots(balances ...uint64) snapshot.PositionSnapshot {
	out := make(snapshot.PositionSnapshot, len(balances))
	for i, b := range balances {
		out[i] = snapshot.PlayerSlot{X: i, Y: 0, Balance: b}
	}
	return out
}

func TestDetector_ZeroSentinelStaysPending(t *testing.T) {
	d := NewDetector(nil)

	for i := 0; i < 3; i++ {
		o, decided := d.Observe(snapshot.Winner{}, slots(10, 20))
		if decided || o.Decided() {
			t.Fatalf("Zero winner must not decide, got %+v", o)
		}
	}
	if d.Outcome().Status != StatusPending {
		t.Errorf("Expected pending, got %s", d.Outcome().Status)
	}
}

func TestDetector_DecidesWithRichestSlot(t *testing.T) {
	d := NewDetector(nil)

	o, decided := d.Observe(snapshot.Winner{Address: "0xabc"}, slots(0, 15, 40, 40))
	if !decided {
		t.Fatal("Non-zero winner should decide")
	}
	if o.Winner != "0xabc" || o.SlotIndex != 3 || o.Balance != 40 {
		t.Errorf("Expected slot 3 (1-based, lowest of ties) with 40, got %+v", o)
	}
}

func TestDetector_LatchIsIdempotent(t *testing.T) {
	d := NewDetector(nil)
	first, _ := d.Observe(snapshot.Winner{Address: "0xabc"}, slots(5, 10))

	for i := 0; i < 5; i++ {
		o, decided := d.Observe(snapshot.Winner{Address: "0xdef"}, slots(500, 1))
		if decided {
			t.Error("Latched detector must not decide again")
		}
		if o != first {
			t.Errorf("Frozen outcome changed: %+v -> %+v", first, o)
		}
	}
}

func TestDetector_WaitsForQualifyingSlot(t *testing.T) {
	d := NewDetector(nil)

	if _, decided := d.Observe(snapshot.Winner{Address: "0xabc"}, nil); decided {
		t.Fatal("No slots should keep the outcome pending")
	}
	dead := slots(0, 0)
	dead[0].Dead = true
	dead[1].Dead = true
	if _, decided := d.Observe(snapshot.Winner{}, dead); decided {
		t.Fatal("Only dead slots with no balance should keep the outcome pending")
	}

	// the winner is remembered; a later positions update decides
	o, decided := d.Observe(snapshot.Winner{}, slots(0, 7))
	if !decided || o.SlotIndex != 2 || o.Balance != 7 || o.Winner != "0xabc" {
		t.Errorf("Expected decision on slot 2 with 7, got %+v (decided %v)", o, decided)
	}
}

func TestDetector_ZeroBalancesFallBackToAliveSlot(t *testing.T) {
	d := NewDetector(nil)

	// last player standing with nothing collected
	s := slots(0, 0, 0)
	s[0].Dead = true
	s[2].Dead = true

	o, decided := d.Observe(snapshot.Winner{Address: "0xabc"}, s)
	if !decided {
		t.Fatal("A non-zero winner with an alive slot should decide")
	}
	if o.SlotIndex != 2 || o.Balance != 0 {
		t.Errorf("Expected alive slot 2 with balance 0, got %+v", o)
	}
}

func TestDetector_ResetReturnsToPending(t *testing.T) {
	d := NewDetector(nil)
	d.Observe(snapshot.Winner{Address: "0xabc"}, slots(1))
	d.Reset()

	if d.Outcome().Decided() {
		t.Error("Reset should return to pending")
	}
	if _, decided := d.Observe(snapshot.Winner{}, slots(9)); decided {
		t.Error("Reset must forget the previous winner")
	}
}

func TestOutcome_WonBy(t *testing.T) {
	o := Outcome{Status: StatusDecided, Winner: "0xabc"}

	if !o.WonBy("0x0ABC") {
		t.Error("Address comparison should ignore case and leading zeros")
	}
	if o.WonBy("0xabd") || o.WonBy("") {
		t.Error("Different or empty address should not win")
	}
	if (Outcome{Status: StatusPending}).WonBy("0xabc") {
		t.Error("Pending outcome has no winner")
	}
}
