package hub

import (
	"context"
	"errors"
	"sort"

	"github.com/DoyleJ11/oxo-escrow/internal/engine"
	"github.com/DoyleJ11/oxo-escrow/internal/escrow"
	"github.com/DoyleJ11/oxo-escrow/internal/table"
	"go.uber.org/zap"
)

var ErrGameExists = errors.New("game id already in use")
var ErrGameHasPot = errors.New("game still holds stakes")
var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// CreateGame opens a new escrow game, drawing the stake from Creator.
type CreateGame struct {
	ID      string
	Creator engine.Player
	Stake   uint64
	Reply   chan Created
}

type Created struct {
	Table *table.Table
	Err   error
}

type GetGame struct {
	ID    string
	Reply chan *table.Table
}

type ListGames struct {
	Reply chan []string
}

// RemoveGame stops a game's table. Games whose pot is not empty are refused
// with ErrGameHasPot; removing an unknown id is not an error.
type RemoveGame struct {
	ID    string
	Reply chan error
}

// ShutdownHub stops every table. Stored games stay unfinished and are
// restored on the next start.
type ShutdownHub struct{}

func (CreateGame) isHubMsg()  {}
func (GetGame) isHubMsg()     {}
func (ListGames) isHubMsg()   {}
func (RemoveGame) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Bank     escrow.Bank
	Rules    engine.Rules
	Recorder table.Recorder
	Logger   *zap.Logger

	// Restore lists games rebuilt from storage. They are registered before
	// the hub accepts messages.
	Restore []table.Restored
}

type Hub struct {
	inbox  chan HubMsg
	games  map[string]*table.Table
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		games:  make(map[string]*table.Table),
		opts:   opts,
		log:    opts.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, r := range opts.Restore {
		h.games[r.Game.ID()] = table.Resume(ctx, r, opts.Recorder, opts.Logger)
	}
	if len(opts.Restore) > 0 {
		h.log.Info("restored games", zap.Int("count", len(opts.Restore)))
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed after ShutdownHub or when the parent context ends.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) Create(ctx context.Context, id string, creator engine.Player, stake uint64) (*table.Table, error) {
	reply := make(chan Created, 1)
	created, err := call(ctx, h, CreateGame{ID: id, Creator: creator, Stake: stake, Reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	return created.Table, created.Err
}

// Get returns nil without an error when no game has that id.
func (h *Hub) Get(ctx context.Context, id string) (*table.Table, error) {
	reply := make(chan *table.Table, 1)
	return call(ctx, h, GetGame{ID: id, Reply: reply}, reply)
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	return call(ctx, h, ListGames{Reply: reply}, reply)
}

func (h *Hub) Remove(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	refused, err := call(ctx, h, RemoveGame{ID: id, Reply: reply}, reply)
	if err != nil {
		return err
	}
	return refused
}

// Shutdown asks the hub to stop and waits until it has.
func (h *Hub) Shutdown(ctx context.Context) error {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call sends msg and waits for its reply. Once the message is queued the
// outcome is awaited even if ctx ends, so a created game is never orphaned.
func call[R any](ctx context.Context, h *Hub, msg HubMsg, reply chan R) (R, error) {
	var zero R
	select {
	case h.inbox <- msg:
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-h.ctx.Done():
		// The hub may have answered just before it stopped.
		select {
		case r := <-reply:
			return r, nil
		default:
			return zero, ErrHubClosed
		}
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateGame:
				if tb := h.games[msg.ID]; tb != nil {
					msg.Reply <- Created{Err: ErrGameExists}
					break
				}
				g, err := escrow.Open(h.ctx, h.opts.Bank, msg.ID, msg.Creator, msg.Stake, h.opts.Rules, h.opts.Logger)
				if err != nil {
					msg.Reply <- Created{Err: err}
					break
				}
				tb := table.New(h.ctx, g, h.opts.Recorder, h.opts.Logger)
				h.games[msg.ID] = tb
				msg.Reply <- Created{Table: tb}

			case GetGame:
				msg.Reply <- h.games[msg.ID] // May be nil

			case ListGames:
				ids := make([]string, 0, len(h.games))
				for id := range h.games {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				msg.Reply <- ids

			case RemoveGame:
				err := h.remove(msg.ID)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case ShutdownHub:
				for _, tb := range h.games {
					stop(tb)
				}
				clear(h.games)
				h.log.Info("hub shut down")
				h.cancel()
			}
		}
	}
}

func (h *Hub) remove(id string) error {
	tb := h.games[id]
	if tb == nil {
		return nil
	}
	v, err := tb.View(h.ctx)
	if err == nil && v.State.Pot > 0 {
		h.log.Warn("refusing to remove game holding stakes", zap.String("game", id), zap.Uint64("pot", v.State.Pot))
		return ErrGameHasPot
	}
	stop(tb)
	delete(h.games, id)
	return nil
}

func stop(tb *table.Table) {
	select {
	case tb.Inbox() <- table.Shutdown{}:
	case <-tb.Done():
	}
}
