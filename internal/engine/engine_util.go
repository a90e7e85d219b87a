package engine

// Legacy numeric winner encoding, kept for clients of the old contract API.
const (
	WinnerCreator  = 0
	WinnerOpponent = 1
	WinnerPending  = 3
)

func (s Side) Other() Side {
	if s == SideCreator {
		return SideOpponent
	}
	return SideCreator
}

func (s Side) Cell() Cell {
	switch s {
	case SideCreator:
		return CellCreator
	case SideOpponent:
		return CellOpponent
	default:
		return CellEmpty
	}
}

func (c Cell) String() string {
	switch c {
	case CellCreator:
		return "X"
	case CellOpponent:
		return "O"
	default:
		return ""
	}
}

func ParseSide(v string) (Side, bool) {
	switch Side(v) {
	case SideCreator:
		return SideCreator, true
	case SideOpponent:
		return SideOpponent, true
	default:
		return "", false
	}
}

// PlayerFor maps a side to the identity seated there. The opponent seat is
// empty until the game is accepted.
func (s State) PlayerFor(side Side) Player {
	switch side {
	case SideCreator:
		return s.Creator
	case SideOpponent:
		return s.Opponent
	default:
		return ""
	}
}

// TurnPlayer is the identity allowed to move next, or "" outside InProgress.
func (s State) TurnPlayer() Player {
	if s.Phase != PhaseInProgress {
		return ""
	}
	return s.PlayerFor(s.Turn)
}

// Winner returns the winning identity once the game is decided by a line.
func (s State) Winner() (Player, bool) {
	switch s.Result {
	case ResultCreatorWon:
		return s.Creator, true
	case ResultOpponentWon:
		return s.Opponent, true
	default:
		return "", false
	}
}

// WinnerIndex is the compatibility encoding of Result: 0 creator, 1 opponent,
// 3 for anything else. A draw has no winner and also reads as 3.
func (s State) WinnerIndex() int {
	switch s.Result {
	case ResultCreatorWon:
		return WinnerCreator
	case ResultOpponentWon:
		return WinnerOpponent
	default:
		return WinnerPending
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
