package types

import "github.com/DoyleJ11/oxo-escrow/internal/engine"

type ClientMessage struct {
	Type   string `json:"type"` // "Accept" | "Move"
	Player string `json:"player"`
	Value  uint64 `json:"value,omitempty"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

type ServerMessage struct {
	Type    string    `json:"type"` // "StateSnapshot" | "Error"
	Version int       `json:"version,omitempty"`
	State   *GameView `json:"state,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type GameView struct {
	ID          string        `json:"id"`
	Version     int           `json:"version"`
	Creator     string        `json:"creator"`
	Opponent    string        `json:"opponent,omitempty"`
	Stake       uint64        `json:"stake"`
	Pot         uint64        `json:"pot"`
	Phase       engine.Phase  `json:"phase"`
	Result      engine.Result `json:"result"`
	Turn        string        `json:"turn,omitempty"`
	FirstMover  engine.Side   `json:"first_mover"`
	WinnerIndex int           `json:"winner_index"`
	Board       [][]string    `json:"board"`
	Events      []EventView   `json:"events,omitempty"`
}

type EventView struct {
	Type   engine.EventType `json:"type"`
	Player string           `json:"player,omitempty"`
	Side   engine.Side      `json:"side,omitempty"`
	Row    *int             `json:"row,omitempty"`
	Col    *int             `json:"col,omitempty"`
	Amount uint64           `json:"amount,omitempty"`
}

func NewGameView(id string, version int, s engine.State) GameView {
	board := make([][]string, engine.Size)
	for r := range board {
		board[r] = make([]string, engine.Size)
		for c := range board[r] {
			board[r][c] = s.Board[r][c].String()
		}
	}
	return GameView{
		ID:          id,
		Version:     version,
		Creator:     string(s.Creator),
		Opponent:    string(s.Opponent),
		Stake:       s.Stake,
		Pot:         s.Pot,
		Phase:       s.Phase,
		Result:      s.Result,
		Turn:        string(s.TurnPlayer()),
		FirstMover:  s.Rules.FirstMover,
		WinnerIndex: s.WinnerIndex(),
		Board:       board,
	}
}

func NewEventViews(events []engine.Event) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		v := EventView{Type: e.Type, Player: string(e.Player), Side: e.Side, Amount: e.Amount}
		if e.Type == engine.EvtMovePlayed {
			row, col := e.Row, e.Col
			v.Row, v.Col = &row, &col
		}
		out = append(out, v)
	}
	return out
}
