// Package table runs one game per goroutine. Every command for a game goes
// through its inbox, so moves on the same game are applied one at a time.
package table

import (
	"context"
	"errors"

	"github.com/DoyleJ11/oxo-escrow/internal/engine"
	"github.com/DoyleJ11/oxo-escrow/internal/escrow"
	"go.uber.org/zap"
)

var ErrTableClosed = errors.New("table closed")

type Msg interface{ isTableMsg() }

type Accept struct {
	Player engine.Player
	Value  uint64
	Reply  chan error
}

func (Accept) isTableMsg() {}

type Move struct {
	Player engine.Player
	Row    int
	Col    int
	Reply  chan error
}

func (Move) isTableMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isTableMsg() {}

type Leave struct{ ClientID string }

func (Leave) isTableMsg() {}

type Shutdown struct{}

func (Shutdown) isTableMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isTableMsg() {}

type Snapshot struct {
	ID      string
	Version int
	State   engine.State
}

type View struct {
	ID         string
	Version    int
	NumClients int
	State      engine.State
	Events     []engine.Event
}

// Recorder persists committed snapshots along with the log that produced them.
type Recorder interface {
	Record(ctx context.Context, id string, version int, st engine.State, events []engine.Event) error
}

// Restored is a game rebuilt from storage and the version it was saved at.
type Restored struct {
	Game    *escrow.Game
	Version int
}

type Table struct {
	inbox    chan Msg
	game     *escrow.Game
	version  int
	clients  map[string]chan Snapshot
	recorder Recorder
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New starts the actor for game. rec may be nil.
func New(parent context.Context, game *escrow.Game, rec Recorder, logger *zap.Logger) *Table {
	t := newTable(parent, game, 0, rec, logger)
	t.record()

	go t.loop()
	return t
}

// Resume starts the actor for a restored game. The game is already stored at
// version, so nothing is recorded until the next command commits.
func Resume(parent context.Context, r Restored, rec Recorder, logger *zap.Logger) *Table {
	t := newTable(parent, r.Game, r.Version, rec, logger)
	go t.loop()
	return t
}

func newTable(parent context.Context, game *escrow.Game, version int, rec Recorder, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	t := &Table{
		inbox:    make(chan Msg, 64),
		game:     game,
		version:  version,
		clients:  make(map[string]chan Snapshot),
		recorder: rec,
		log:      logger.With(zap.String("game", game.ID())),
		ctx:      ctx,
		cancel:   cancel,
	}
	return t
}

func (t *Table) loop() {
	for {
		select {
		case <-t.ctx.Done():
			t.shutdown()
			return

		case m := <-t.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				t.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- t.snapshot()

			case Leave:
				if ch, ok := t.clients[msg.ClientID]; ok {
					close(ch)
					delete(t.clients, msg.ClientID)
				}

			case Accept:
				err := t.game.Accept(t.ctx, msg.Player, msg.Value)
				t.settle(err, "accept", zap.String("player", string(msg.Player)))
				msg.Reply <- err

			case Move:
				err := t.game.Move(t.ctx, msg.Player, msg.Row, msg.Col)
				t.settle(err, "move", zap.String("player", string(msg.Player)),
					zap.Int("row", msg.Row), zap.Int("col", msg.Col))
				msg.Reply <- err

			case GetState:
				msg.Reply <- View{
					ID:         t.game.ID(),
					Version:    t.version,
					NumClients: len(t.clients),
					State:      t.game.State(),
					Events:     t.game.Events(),
				}

			case Shutdown:
				t.shutdown()
				return
			}
		}
	}
}

// settle bumps the version and fans out after a committed command.
func (t *Table) settle(err error, op string, fields ...zap.Field) {
	if err != nil {
		t.log.Debug(op+" rejected", append(fields, zap.Error(err))...)
		return
	}
	t.version++
	t.record()
	t.broadcast(t.snapshot())
}

func (t *Table) record() {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.Record(t.ctx, t.game.ID(), t.version, t.game.State(), t.game.Events()); err != nil {
		t.log.Error("record snapshot", zap.Int("version", t.version), zap.Error(err))
	}
}

func (t *Table) snapshot() Snapshot {
	return Snapshot{ID: t.game.ID(), Version: t.version, State: t.game.State()}
}

func (t *Table) shutdown() {
	for id, ch := range t.clients {
		close(ch) // Tell client no more snapshots
		delete(t.clients, id)
	}
	t.cancel()
}

func (t *Table) broadcast(snap Snapshot) {
	for id, ch := range t.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(t.clients, id)
		}
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (t *Table) Inbox() chan<- Msg { return t.inbox }

func (t *Table) ID() string { return t.game.ID() }

// Done is closed once the table stops accepting messages.
func (t *Table) Done() <-chan struct{} { return t.ctx.Done() }

func (t *Table) Accept(ctx context.Context, player engine.Player, value uint64) error {
	reply := make(chan error, 1)
	return t.call(ctx, Accept{Player: player, Value: value, Reply: reply}, reply)
}

func (t *Table) Move(ctx context.Context, player engine.Player, row, col int) error {
	reply := make(chan error, 1)
	return t.call(ctx, Move{Player: player, Row: row, Col: col, Reply: reply}, reply)
}

func (t *Table) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case t.inbox <- GetState{Reply: reply}:
	case <-t.ctx.Done():
		return View{}, ErrTableClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-t.ctx.Done():
		return View{}, ErrTableClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (t *Table) call(ctx context.Context, msg Msg, reply chan error) error {
	select {
	case t.inbox <- msg:
	case <-t.ctx.Done():
		return ErrTableClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// The command may already be applied; wait for its outcome rather than ctx.
	select {
	case err := <-reply:
		return err
	case <-t.ctx.Done():
		return ErrTableClosed
	}
}
