package snapshot

import (
	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/felt"
)

// Decoder turns raw scalar sequences into typed snapshots
type Decoder struct {
	GridSize       int
	LengthPrefixed bool // reads carry a leading array length element
}

// NewDecoder creates a decoder for a square board of side gridSize
func NewDecoder(gridSize int, lengthPrefixed bool) Decoder {
	if gridSize <= 0 {
		gridSize = DefaultGridSize
	}
	return Decoder{GridSize: gridSize, LengthPrefixed: lengthPrefixed}
}

// body drops the length prefix. Its value is not checked: arrays of
// structs are prefixed with the element count, not the scalar count.
func (d Decoder) body(op string, raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, faults.Decodef(op, "empty response")
	}
	if !d.LengthPrefixed {
		return raw, nil
	}
	return raw[1:], nil
}

// Board decodes a get_map read. Unknown or unparseable cell values become
// Empty; only an empty read fails.
func (d Decoder) Board(raw []string) (Board, error) {
	body, err := d.body("board", raw)
	if err != nil {
		return Board{}, err
	}

	n := d.GridSize * d.GridSize
	if len(body) > n {
		body = body[:n]
	}
	cells := make([]Cell, n)
	for i, s := range body {
		cells[i] = cellFromScalar(s)
	}
	return Board{size: d.GridSize, cells: cells}, nil
}

// Positions decodes a get_positions read in groups of FieldsPerPlayer.
// A remainder that does not divide evenly is a decode fault.
func (d Decoder) Positions(raw []string) (PositionSnapshot, error) {
	body, err := d.body("positions", raw)
	if err != nil {
		return nil, err
	}
	if len(body)%FieldsPerPlayer != 0 {
		return nil, faults.Decodef("positions", "%d elements not divisible into groups of %d",
			len(body), FieldsPerPlayer)
	}

	slots := make(PositionSnapshot, 0, len(body)/FieldsPerPlayer)
	for i := 0; i < len(body); i += FieldsPerPlayer {
		slot, err := d.slot(i/FieldsPerPlayer, body[i:i+FieldsPerPlayer])
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (d Decoder) slot(index int, group []string) (PlayerSlot, error) {
	x, err := felt.Int(group[0])
	if err != nil {
		return PlayerSlot{}, faults.Decodef("positions", "slot %d x: %v", index, err)
	}
	y, err := felt.Int(group[1])
	if err != nil {
		return PlayerSlot{}, faults.Decodef("positions", "slot %d y: %v", index, err)
	}
	if x < 0 || y < 0 || x >= int64(d.GridSize) || y >= int64(d.GridSize) {
		return PlayerSlot{}, faults.Decodef("positions", "slot %d at (%d,%d) outside %dx%d board",
			index, x, y, d.GridSize, d.GridSize)
	}
	poweredUp, err := felt.Bool(group[2])
	if err != nil {
		return PlayerSlot{}, faults.Decodef("positions", "slot %d powered-up flag: %v", index, err)
	}
	dead, err := felt.Bool(group[3])
	if err != nil {
		return PlayerSlot{}, faults.Decodef("positions", "slot %d dead flag: %v", index, err)
	}
	balance, err := felt.Uint(group[4])
	if err != nil {
		return PlayerSlot{}, faults.Decodef("positions", "slot %d balance: %v", index, err)
	}

	return PlayerSlot{
		X:         int(x),
		Y:         int(y),
		PoweredUp: poweredUp,
		Dead:      dead,
		Balance:   balance,
	}, nil
}

// single returns the only scalar of a one-value read. The prefix is
// tolerated when present since some nodes wrap single values too.
func (d Decoder) single(op string, raw []string) (string, error) {
	if len(raw) == 1 {
		return raw[0], nil
	}
	if len(raw) == 2 && d.LengthPrefixed {
		if n, err := felt.Int(raw[0]); err == nil && n == 1 {
			return raw[1], nil
		}
	}
	return "", faults.Decodef(op, "expected one scalar, got %d", len(raw))
}

// TopSessionID decodes a get_top_session_id read
func (d Decoder) TopSessionID(raw []string) (int64, error) {
	s, err := d.single("top_session_id", raw)
	if err != nil {
		return 0, err
	}
	id, err := felt.Int(s)
	if err != nil {
		return 0, faults.Decodef("top_session_id", "%v", err)
	}
	if id < 0 {
		return 0, faults.Decodef("top_session_id", "negative id %d", id)
	}
	return id, nil
}

// Winner decodes a get_winner read; zero decodes to no winner
func (d Decoder) Winner(raw []string) (Winner, error) {
	s, err := d.single("winner", raw)
	if err != nil {
		return Winner{}, err
	}
	if felt.IsZero(s) {
		return Winner{}, nil
	}
	addr, err := felt.Hex(s)
	if err != nil {
		return Winner{}, faults.Decodef("winner", "%v", err)
	}
	return Winner{Address: addr}, nil
}
