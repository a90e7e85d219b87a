package engine

import (
	"errors"
	"math"
)

var ErrInvalidStake = errors.New("invalid stake")
var ErrUnauthorized = errors.New("unauthorized")
var ErrWrongStake = errors.New("wrong stake")
var ErrInvalidPhase = errors.New("invalid phase")
var ErrOutOfBounds = errors.New("move out of bounds")
var ErrOutOfTurn = errors.New("out of turn")
var ErrCellOccupied = errors.New("cell occupied")
var ErrGameOver = errors.New("game over")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrInvalidRules = errors.New("invalid rules")

// Size is the width and height of the board.
const Size = 3

// MaxStake keeps the pot, two stakes, within uint64.
const MaxStake = math.MaxUint64 / 2

type Player string

type Side string

const (
	SideCreator  Side = "creator"
	SideOpponent Side = "opponent"
)

type Cell uint8

const (
	CellEmpty Cell = iota
	CellCreator
	CellOpponent
)

type Phase string

const (
	PhaseAwaitingOpponent Phase = "awaiting_opponent"
	PhaseInProgress       Phase = "in_progress"
	PhaseFinished         Phase = "finished"
)

type Result string

const (
	ResultPending     Result = "pending"
	ResultCreatorWon  Result = "creator_won"
	ResultOpponentWon Result = "opponent_won"
	ResultDraw        Result = "draw"
)

type Board [Size][Size]Cell

type Rules struct {
	FirstMover Side
}

// State is a value type: Board is an array, so copying a State copies the grid.
type State struct {
	Creator  Player
	Opponent Player
	Stake    uint64
	Board    Board
	Turn     Side
	Phase    Phase
	Result   Result
	Pot      uint64
	Moves    int
	Rules    Rules
}

type CommandType string

const (
	CmdAccept CommandType = "Accept"
	CmdMove   CommandType = "Move"
)

/*
	New       -> EvtGameCreated
	CmdAccept -> EvtGameAccepted -> EvtTurnAdvanced
	CmdMove   -> EvtMovePlayed -> EvtTurnAdvanced
	          or EvtMovePlayed -> EvtGameWon -> EvtPotReleased
	          or EvtMovePlayed -> EvtGameDrawn -> EvtPotReleased (x2)
*/

type Command struct {
	Type   CommandType
	Player Player
	Value  uint64
	Row    int
	Col    int
}

type EventType string

const (
	EvtGameCreated  EventType = "GameCreated"
	EvtGameAccepted EventType = "GameAccepted"
	EvtMovePlayed   EventType = "MovePlayed"
	EvtTurnAdvanced EventType = "TurnAdvanced"
	EvtGameWon      EventType = "GameWon"
	EvtGameDrawn    EventType = "GameDrawn"
	EvtPotReleased  EventType = "PotReleased"
)

type Event struct {
	Type   EventType
	Player Player
	Side   Side
	Row    int
	Col    int
	Amount uint64
}

// New opens a game funded by creator. The returned events are the first
// entries of the game's log.
func New(creator Player, stake uint64, rules Rules) ([]Event, State, error) {
	if stake == 0 || stake > MaxStake {
		return nil, State{}, ErrInvalidStake
	}
	if creator == "" {
		return nil, State{}, ErrUnauthorized
	}
	if rules.FirstMover == "" {
		rules.FirstMover = SideCreator
	}
	if rules.FirstMover != SideCreator && rules.FirstMover != SideOpponent {
		return nil, State{}, ErrInvalidRules
	}

	events := []Event{
		{Type: EvtGameCreated, Player: creator, Side: rules.FirstMover, Amount: stake},
	}
	return events, Reduce(events), nil
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseFinished {
		return nil, s, ErrGameOver
	}

	switch cmd.Type {
	case CmdAccept:
		if s.Phase != PhaseAwaitingOpponent {
			return nil, s, ErrInvalidPhase
		}
		if cmd.Player == "" || cmd.Player == s.Creator {
			return nil, s, ErrUnauthorized
		}
		if cmd.Value != s.Stake {
			return nil, s, ErrWrongStake
		}

		events := []Event{
			{Type: EvtGameAccepted, Player: cmd.Player, Amount: cmd.Value},
			{Type: EvtTurnAdvanced, Side: s.Rules.FirstMover},
		}
		return events, fold(s, events), nil

	case CmdMove:
		if s.Phase != PhaseInProgress {
			return nil, s, ErrInvalidPhase
		}
		if !inBounds(cmd.Row, cmd.Col) {
			return nil, s, ErrOutOfBounds
		}
		if cmd.Player != s.PlayerFor(s.Turn) {
			return nil, s, ErrOutOfTurn
		}
		if s.Board[cmd.Row][cmd.Col] != CellEmpty {
			return nil, s, ErrCellOccupied
		}

		events := []Event{
			{Type: EvtMovePlayed, Player: cmd.Player, Side: s.Turn, Row: cmd.Row, Col: cmd.Col},
		}

		// Only the line through the new mark can have been completed.
		played := fold(s, events)
		switch {
		case completesLine(played.Board, cmd.Row, cmd.Col):
			events = append(events,
				Event{Type: EvtGameWon, Player: cmd.Player, Side: s.Turn},
				Event{Type: EvtPotReleased, Player: cmd.Player, Amount: s.Pot},
			)
		case played.Moves == Size*Size:
			// Equal split refund; each side gets its stake back.
			events = append(events,
				Event{Type: EvtGameDrawn},
				Event{Type: EvtPotReleased, Player: s.Creator, Amount: s.Stake},
				Event{Type: EvtPotReleased, Player: s.Opponent, Amount: s.Pot - s.Stake},
			)
		default:
			events = append(events, Event{Type: EvtTurnAdvanced, Side: s.Turn.Other()})
		}
		return events, fold(s, events), nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// Reduce rebuilds a game from its full event log.
func Reduce(events []Event) State {
	return fold(State{}, events)
}

func fold(s State, events []Event) State {
	for _, event := range events {
		switch event.Type {
		case EvtGameCreated:
			s = State{
				Creator: event.Player,
				Stake:   event.Amount,
				Pot:     event.Amount,
				Phase:   PhaseAwaitingOpponent,
				Result:  ResultPending,
				Rules:   Rules{FirstMover: event.Side},
			}
		case EvtGameAccepted:
			s.Opponent = event.Player
			s.Pot += event.Amount
			s.Phase = PhaseInProgress
		case EvtTurnAdvanced:
			s.Turn = event.Side
		case EvtMovePlayed:
			s.Board[event.Row][event.Col] = event.Side.Cell()
			s.Moves++
		case EvtGameWon:
			s.Phase = PhaseFinished
			s.Turn = ""
			if event.Side == SideCreator {
				s.Result = ResultCreatorWon
			} else {
				s.Result = ResultOpponentWon
			}
		case EvtGameDrawn:
			s.Phase = PhaseFinished
			s.Turn = ""
			s.Result = ResultDraw
		case EvtPotReleased:
			s.Pot -= event.Amount
		}
	}
	return s
}

func inBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// completesLine reports whether the mark at (row, col) sits on a full row,
// column or diagonal.
func completesLine(b Board, row, col int) bool {
	mark := b[row][col]
	if mark == CellEmpty {
		return false
	}

	dirs := [][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1
		for r, c := row+d[0], col+d[1]; inBounds(r, c) && b[r][c] == mark; r, c = r+d[0], c+d[1] {
			count++
		}
		for r, c := row-d[0], col-d[1]; inBounds(r, c) && b[r][c] == mark; r, c = r-d[0], c-d[1] {
			count++
		}
		if count >= Size {
			return true
		}
	}
	return false
}
