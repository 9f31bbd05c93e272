// Package sim is an in-memory stand-in for the remote game contract. It
// answers the four reads with length-prefixed hex scalars and executes the
// three write commands, so the viewer can run offline and be tested end to
// end.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/decred/slog"
	"github.com/pacroyale/viewer/pkg/felt"
	"github.com/pacroyale/viewer/pkg/protocol"
	"github.com/pacroyale/viewer/pkg/snapshot"
)

// powerMoves is how many moves a power pellet lasts
const powerMoves = 12

type player struct {
	address string
	x, y    int
	powered int
	dead    bool
	balance uint64
}

type game struct {
	id      int64
	cells   []snapshot.Cell
	players []*player
	winner  string
}

func (g *game) over() bool { return g.winner != "" }

// Service is a simulated game contract
type Service struct {
	gridSize int
	caller   string
	rng      *rand.Rand
	log      slog.Logger

	mutex    sync.Mutex
	sessions map[int64]*game
	top      int64
	reads    int64
	commands int64
	rejected int64

	// Bot loop control
	botMutex sync.Mutex
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
}

// NewService creates a simulated contract. caller is the address commands
// sent through Send act on behalf of.
func NewService(gridSize int, caller string, seed int64, log slog.Logger) *Service {
	if log == nil {
		log = slog.Disabled
	}
	if gridSize < 5 {
		gridSize = 5
	}
	if caller == "" {
		caller = "0x1"
	}
	if addr, err := felt.Hex(caller); err == nil {
		caller = addr
	}
	return &Service{
		gridSize: gridSize,
		caller:   caller,
		rng:      rand.New(rand.NewSource(seed)),
		log:      log,
		sessions: make(map[int64]*game),
	}
}

// newBoard lays out border walls, a pillar every other cell, power pellets
// in the inner corners and pellets everywhere else
func newBoard(n int) []snapshot.Cell {
	cells := make([]snapshot.Cell, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			idx := y*n + x
			switch {
			case x == 0 || y == 0 || x == n-1 || y == n-1:
				cells[idx] = snapshot.CellWall
			case x%2 == 0 && y%2 == 0:
				cells[idx] = snapshot.CellWall
			default:
				cells[idx] = snapshot.CellPellet
			}
		}
	}
	for _, c := range [][2]int{{1, 1}, {n - 2, 1}, {1, n - 2}, {n - 2, n - 2}} {
		cells[c[1]*n+c[0]] = snapshot.CellPowerPellet
	}
	return cells
}

// spawnPoints are tried in order for new players
func spawnPoints(n int) [][2]int {
	mid := n / 2
	if mid%2 == 0 {
		mid--
	}
	return [][2]int{
		{1, mid}, {n - 2, mid}, {mid, 1}, {mid, n - 2},
		{1, 1}, {n - 2, n - 2}, {n - 2, 1}, {1, n - 2},
	}
}

// InitSession creates the session following the newest one
func (s *Service) InitSession() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.initLocked()
}

func (s *Service) initLocked() int64 {
	s.top++
	s.sessions[s.top] = &game{id: s.top, cells: newBoard(s.gridSize)}
	s.log.Infof("Session %d initialised", s.top)
	return s.top
}

// AddPlayer places address into a session
func (s *Service) AddPlayer(sessionID int64, address string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.addLocked(sessionID, address)
}

func (s *Service) addLocked(sessionID int64, address string) error {
	g, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %d does not exist", sessionID)
	}
	if g.over() {
		return fmt.Errorf("session %d is over", sessionID)
	}
	for _, p := range g.players {
		if p.address == address {
			return fmt.Errorf("%s already joined session %d", address, sessionID)
		}
	}
	points := spawnPoints(s.gridSize)
	if len(g.players) >= len(points) {
		return fmt.Errorf("session %d is full", sessionID)
	}
	sp := points[len(g.players)]
	g.players = append(g.players, &player{address: address, x: sp[0], y: sp[1]})
	s.log.Debugf("%s joined session %d at (%d,%d)", address, sessionID, sp[0], sp[1])
	return nil
}

// Move moves address one cell in dir
func (s *Service) Move(sessionID int64, address string, dir protocol.Direction) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.moveLocked(sessionID, address, dir)
}

func (s *Service) moveLocked(sessionID int64, address string, dir protocol.Direction) error {
	g, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %d does not exist", sessionID)
	}
	if g.over() {
		return fmt.Errorf("session %d is over", sessionID)
	}
	var me *player
	for _, p := range g.players {
		if p.address == address {
			me = p
		}
	}
	if me == nil {
		return fmt.Errorf("%s is not in session %d", address, sessionID)
	}
	if me.dead {
		return fmt.Errorf("%s is dead", address)
	}

	x, y := me.x, me.y
	switch dir {
	case protocol.Up:
		y--
	case protocol.Down:
		y++
	case protocol.Left:
		x--
	case protocol.Right:
		x++
	default:
		return fmt.Errorf("invalid direction %d", int(dir))
	}
	n := s.gridSize
	if x < 0 || y < 0 || x >= n || y >= n || g.cells[y*n+x] == snapshot.CellWall {
		return nil
	}

	me.x, me.y = x, y
	if me.powered > 0 {
		me.powered--
	}
	switch idx := y*n + x; g.cells[idx] {
	case snapshot.CellPellet:
		me.balance++
		g.cells[idx] = snapshot.CellEmpty
	case snapshot.CellPowerPellet:
		me.powered = powerMoves
		g.cells[idx] = snapshot.CellEmpty
	}

	for _, other := range g.players {
		if other == me || other.dead || other.x != me.x || other.y != me.y {
			continue
		}
		switch {
		case me.powered > 0 && other.powered == 0:
			other.dead = true
			me.balance += other.balance
			other.balance = 0
			s.log.Debugf("%s caught %s in session %d", me.address, other.address, g.id)
		case other.powered > 0 && me.powered == 0:
			me.dead = true
			other.balance += me.balance
			me.balance = 0
			s.log.Debugf("%s caught %s in session %d", other.address, me.address, g.id)
		}
	}

	s.settle(g)
	return nil
}

// settle decides the winner once one player is left standing or every
// pellet is gone
func (s *Service) settle(g *game) {
	alive := 0
	var last *player
	for _, p := range g.players {
		if !p.dead {
			alive++
			last = p
		}
	}
	if len(g.players) > 1 && alive == 1 {
		g.winner = last.address
	} else if countCells(g.cells, snapshot.CellPellet) == 0 {
		var best *player
		for _, p := range g.players {
			if best == nil || p.balance > best.balance {
				best = p
			}
		}
		if best != nil {
			g.winner = best.address
		}
	}
	if g.winner != "" {
		s.log.Infof("Session %d won by %s", g.id, g.winner)
	}
}

func countCells(cells []snapshot.Cell, c snapshot.Cell) int {
	n := 0
	for _, v := range cells {
		if v == c {
			n++
		}
	}
	return n
}

// Send executes a command on behalf of the configured caller
func (s *Service) Send(ctx context.Context, cmd protocol.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.commands++

	var err error
	switch cmd.Type {
	case protocol.InitSessionType:
		s.initLocked()
	case protocol.AddPlayerType:
		err = s.addLocked(cmd.SessionID, s.caller)
	case protocol.MoveType:
		err = s.moveLocked(cmd.SessionID, s.caller, cmd.Direction)
	}
	if err != nil {
		s.rejected++
		s.log.Debugf("Rejected %s: %v", cmd.Type, err)
	}
	return err
}

func withPrefix(values []string) []string {
	return append([]string{felt.FromInt(int64(len(values)))}, values...)
}

// GetMap returns the board of a session; unknown sessions read as empty
func (s *Service) GetMap(ctx context.Context, sessionID int64) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reads++

	n := s.gridSize
	out := make([]string, n*n)
	g := s.sessions[sessionID]
	for i := range out {
		c := snapshot.CellEmpty
		if g != nil {
			c = g.cells[i]
		}
		out[i] = felt.FromInt(int64(c))
	}
	return withPrefix(out), nil
}

// GetPositions returns x, y, powered, dead, balance per player
func (s *Service) GetPositions(ctx context.Context, sessionID int64) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reads++

	var out []string
	if g := s.sessions[sessionID]; g != nil {
		for _, p := range g.players {
			out = append(out,
				felt.FromInt(int64(p.x)),
				felt.FromInt(int64(p.y)),
				flag(p.powered > 0),
				flag(p.dead),
				felt.FromInt(int64(p.balance)))
		}
	}
	return withPrefix(out), nil
}

func flag(b bool) string {
	if b {
		return "0x1"
	}
	return "0x0"
}

// GetTopSessionID returns the newest session id, zero before any exists
func (s *Service) GetTopSessionID(ctx context.Context) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reads++
	return []string{felt.FromInt(s.top)}, nil
}

// GetWinner returns the winner address or zero
func (s *Service) GetWinner(ctx context.Context, sessionID int64) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reads++

	if g := s.sessions[sessionID]; g != nil && g.winner != "" {
		return []string{g.winner}, nil
	}
	return []string{"0x0"}, nil
}

// Caller returns the address Send acts for
func (s *Service) Caller() string { return s.caller }

// GetStats returns simulator statistics
func (s *Service) GetStats() map[string]interface{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return map[string]interface{}{
		"sessions": len(s.sessions),
		"top":      s.top,
		"reads":    s.reads,
		"commands": s.commands,
		"rejected": s.rejected,
	}
}
