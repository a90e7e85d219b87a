// Package escrow binds a game to the stakes it holds. It takes each stake
// from the player's account when the game accepts it and pays the pot out
// exactly once, when a move finishes the game.
package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/oxo-escrow/internal/engine"
	"github.com/DoyleJ11/oxo-escrow/internal/ledger"
	"go.uber.org/zap"
)

var ErrIntakeFailed = errors.New("stake intake failed")
var ErrPayoutFailed = errors.New("payout failed")
var ErrBadLog = errors.New("event log does not start a game")

// Bank is the value-transfer capability supplied by the embedding system.
type Bank interface {
	Debit(ctx context.Context, account string, amount uint64) error
	CreditAll(ctx context.Context, credits []ledger.Credit) error
}

// Game is not safe for concurrent use; callers serialize access (see table).
type Game struct {
	id     string
	state  engine.State
	events []engine.Event
	bank   Bank
	log    *zap.Logger
}

// Open validates the stake, then draws it from the creator's account.
func Open(ctx context.Context, bank Bank, id string, creator engine.Player, stake uint64, rules engine.Rules, logger *zap.Logger) (*Game, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	events, state, err := engine.New(creator, stake, rules)
	if err != nil {
		return nil, err
	}
	if err := bank.Debit(ctx, string(creator), stake); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntakeFailed, err)
	}

	g := &Game{
		id:     id,
		state:  state,
		events: events,
		bank:   bank,
		log:    logger.With(zap.String("game", id)),
	}
	g.log.Info("game opened", zap.String("creator", string(creator)), zap.Uint64("stake", stake))
	return g, nil
}

// Restore rebuilds a game from its event log. The stakes the log records are
// already held, so nothing is drawn from the bank.
func Restore(bank Bank, id string, events []engine.Event, logger *zap.Logger) (*Game, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(events) == 0 || events[0].Type != engine.EvtGameCreated {
		return nil, fmt.Errorf("restore %s: %w", id, ErrBadLog)
	}
	g := &Game{
		id:     id,
		state:  engine.Reduce(events),
		events: append([]engine.Event(nil), events...),
		bank:   bank,
		log:    logger.With(zap.String("game", id)),
	}
	g.log.Info("game restored", zap.String("phase", string(g.state.Phase)), zap.Uint64("pot", g.state.Pot))
	return g, nil
}

func (g *Game) Accept(ctx context.Context, player engine.Player, value uint64) error {
	events, next, err := engine.Apply(g.state, engine.Command{Type: engine.CmdAccept, Player: player, Value: value})
	if err != nil {
		return err
	}
	if err := g.bank.Debit(ctx, string(player), value); err != nil {
		return fmt.Errorf("%w: %w", ErrIntakeFailed, err)
	}
	g.commit(events, next)
	g.log.Info("game accepted", zap.String("opponent", string(player)), zap.Uint64("pot", next.Pot))
	return nil
}

// Move applies a move. A finishing move commits the Finished state before the
// pot is paid out; if the payout fails the move is undone.
func (g *Game) Move(ctx context.Context, player engine.Player, row, col int) error {
	events, next, err := engine.Apply(g.state, engine.Command{Type: engine.CmdMove, Player: player, Row: row, Col: col})
	if err != nil {
		return err
	}

	prevState, prevLen := g.state, len(g.events)
	g.commit(events, next)

	credits := payouts(events)
	if len(credits) == 0 {
		return nil
	}
	if err := g.bank.CreditAll(ctx, credits); err != nil {
		g.state, g.events = prevState, g.events[:prevLen]
		g.log.Error("payout failed, move rolled back", zap.Error(err),
			zap.String("player", string(player)), zap.Int("row", row), zap.Int("col", col))
		return fmt.Errorf("%w: %w", ErrPayoutFailed, err)
	}
	for _, c := range credits {
		g.log.Info("pot released", zap.String("to", c.Account), zap.Uint64("amount", c.Amount),
			zap.String("result", string(next.Result)))
	}
	return nil
}

func (g *Game) commit(events []engine.Event, next engine.State) {
	g.state = next
	g.events = append(g.events, events...)
}

func payouts(events []engine.Event) []ledger.Credit {
	var credits []ledger.Credit
	for _, e := range events {
		if e.Type == engine.EvtPotReleased && e.Amount > 0 {
			credits = append(credits, ledger.Credit{Account: string(e.Player), Amount: e.Amount})
		}
	}
	return credits
}

func (g *Game) ID() string { return g.id }
func (g *Game) State() engine.State { return g.state }
func (g *Game) Turn() engine.Player { return g.state.TurnPlayer() }
func (g *Game) Phase() engine.Phase { return g.state.Phase }
func (g *Game) Result() engine.Result { return g.state.Result }
func (g *Game) WinnerIndex() int { return g.state.WinnerIndex() }
func (g *Game) Pot() uint64 { return g.state.Pot }
func (g *Game) Board() engine.Board { return g.state.Board }

// Events returns a copy of the game's log.
func (g *Game) Events() []engine.Event {
	return append([]engine.Event(nil), g.events...)
}
