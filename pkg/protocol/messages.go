package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pacroyale/viewer/pkg/felt"
)

// Direction is a movement direction. Its value is the wire code used by
// the move command.
type Direction int

const (
	Up    Direction = 0
	Down  Direction = 1
	Left  Direction = 2
	Right Direction = 3
)

// Code returns the direction code sent to the game contract
func (d Direction) Code() int { return int(d) }

// Valid reports whether d is one of the four directions
func (d Direction) Valid() bool { return d >= Up && d <= Right }

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts the direction names returned by String
func ParseDirection(name string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", name)
}

// CommandType identifies an outbound write command
type CommandType string

const (
	AddPlayerType   CommandType = "ADD_PLAYER"
	MoveType        CommandType = "MOVE"
	InitSessionType CommandType = "INIT_SESSION"
)

// Command is an outbound write to the game contract. ID is unique per
// command so the relay and the logs can trace it.
type Command struct {
	ID        uuid.UUID   `json:"id"`
	Type      CommandType `json:"type"`
	SessionID int64       `json:"session_id,omitempty"`
	Direction Direction   `json:"direction"`
	Timestamp int64       `json:"timestamp"`
}

// CreateMoveCommand creates a move command for a session
func CreateMoveCommand(sessionID int64, dir Direction) Command {
	return Command{
		ID:        uuid.New(),
		Type:      MoveType,
		SessionID: sessionID,
		Direction: dir,
		Timestamp: getCurrentTimestamp(),
	}
}

// CreateAddPlayerCommand creates a join command for a session
func CreateAddPlayerCommand(sessionID int64) Command {
	return Command{
		ID:        uuid.New(),
		Type:      AddPlayerType,
		SessionID: sessionID,
		Timestamp: getCurrentTimestamp(),
	}
}

// CreateInitSessionCommand creates the command initialising the next session
func CreateInitSessionCommand() Command {
	return Command{
		ID:        uuid.New(),
		Type:      InitSessionType,
		Timestamp: getCurrentTimestamp(),
	}
}

// Entrypoint returns the contract function the command invokes
func (c Command) Entrypoint() string {
	switch c.Type {
	case MoveType:
		return "move"
	case AddPlayerType:
		return "add_player"
	case InitSessionType:
		return "init_session"
	default:
		return ""
	}
}

// Calldata returns the command arguments as hex scalars
func (c Command) Calldata() []string {
	switch c.Type {
	case MoveType:
		return []string{felt.FromInt(c.SessionID), felt.FromInt(int64(c.Direction.Code()))}
	case AddPlayerType:
		return []string{felt.FromInt(c.SessionID)}
	default:
		return []string{}
	}
}

// Validate checks the command before it leaves the process
func (c Command) Validate() error {
	switch c.Type {
	case MoveType:
		if c.SessionID < 1 {
			return fmt.Errorf("move: invalid session id %d", c.SessionID)
		}
		if !c.Direction.Valid() {
			return fmt.Errorf("move: invalid direction %d", int(c.Direction))
		}
	case AddPlayerType:
		if c.SessionID < 1 {
			return fmt.Errorf("add_player: invalid session id %d", c.SessionID)
		}
	case InitSessionType:
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
	return nil
}

// getCurrentTimestamp returns the current time in milliseconds
func getCurrentTimestamp() int64 {
	return time.Now().UnixMilli()
}
