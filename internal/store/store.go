// Package store persists account balances and game snapshots in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/oxo-escrow/internal/engine"
	"github.com/DoyleJ11/oxo-escrow/internal/escrow"
	"github.com/DoyleJ11/oxo-escrow/internal/ledger"
	"github.com/DoyleJ11/oxo-escrow/internal/table"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Account struct {
	ID        string `gorm:"primaryKey"`
	Balance   uint64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

var ErrCorruptRecord = errors.New("stored game does not match its log")

// GameRecord is the latest committed snapshot of one game. Events is the
// full log; the other columns are derived from it for querying.
type GameRecord struct {
	ID         string `gorm:"primaryKey"`
	Version    int    `gorm:"not null"`
	Creator    string `gorm:"not null"`
	Opponent   string
	Stake      uint64 `gorm:"not null"`
	Pot        uint64 `gorm:"not null"`
	Phase      string `gorm:"not null;index"`
	Result     string `gorm:"not null"`
	Turn       string
	FirstMover string
	Board      string         `gorm:"size:9;not null"`
	Events     []engine.Event `gorm:"serializer:json;type:jsonb"`
	UpdatedAt  time.Time
}

type Store struct {
	db *gorm.DB
}

var _ ledger.Ledger = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Account{}, &GameRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Debit(ctx context.Context, account string, amount uint64) error {
	if account == "" {
		return ledger.ErrInvalidAccount
	}
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&acc, "id = ?", account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		if acc.Balance < amount {
			return ledger.ErrInsufficientFunds
		}
		return tx.Model(&acc).Update("balance", acc.Balance-amount).Error
	})
}

func (s *Store) Credit(ctx context.Context, account string, amount uint64) error {
	return s.CreditAll(ctx, []ledger.Credit{{Account: account, Amount: amount}})
}

// CreditAll applies every credit inside one transaction.
func (s *Store) CreditAll(ctx context.Context, credits []ledger.Credit) error {
	for _, c := range credits {
		if c.Account == "" {
			return ledger.ErrInvalidAccount
		}
		if c.Amount == 0 {
			return ledger.ErrInvalidAmount
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range credits {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"balance":    gorm.Expr("accounts.balance + ?", c.Amount),
					"updated_at": time.Now(),
				}),
			}).Create(&Account{ID: c.Account, Balance: c.Amount}).Error
			if err != nil {
				return fmt.Errorf("credit %s: %w", c.Account, err)
			}
		}
		return nil
	})
}

func (s *Store) Balance(ctx context.Context, account string) (uint64, error) {
	if account == "" {
		return 0, ledger.ErrInvalidAccount
	}
	var acc Account
	err := s.db.WithContext(ctx).First(&acc, "id = ?", account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Record upserts the snapshot for a game.
func (s *Store) Record(ctx context.Context, id string, version int, st engine.State, events []engine.Event) error {
	rec := NewGameRecord(id, version, st, events)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

func (s *Store) LoadGame(ctx context.Context, id string) (GameRecord, error) {
	var rec GameRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	return rec, err
}

// Unfinished returns every stored game that still holds stakes or awaits moves.
func (s *Store) Unfinished(ctx context.Context) ([]GameRecord, error) {
	var recs []GameRecord
	err := s.db.WithContext(ctx).
		Where("phase <> ?", string(engine.PhaseFinished)).
		Order("updated_at").
		Find(&recs).Error
	return recs, err
}

// Restore rebuilds the unfinished games so a new hub can take them over.
func (s *Store) Restore(ctx context.Context, bank escrow.Bank, logger *zap.Logger) ([]table.Restored, error) {
	recs, err := s.Unfinished(ctx)
	if err != nil {
		return nil, fmt.Errorf("load unfinished games: %w", err)
	}
	return RestoreRecords(recs, bank, logger)
}

// RestoreRecords replays each record's log. Any record whose log disagrees
// with its columns fails the whole restore, since its stakes are unaccounted.
func RestoreRecords(recs []GameRecord, bank escrow.Bank, logger *zap.Logger) ([]table.Restored, error) {
	out := make([]table.Restored, 0, len(recs))
	for _, rec := range recs {
		if _, err := rec.Replay(); err != nil {
			return nil, err
		}
		g, err := escrow.Restore(bank, rec.ID, rec.Events, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, table.Restored{Game: g, Version: rec.Version})
	}
	return out, nil
}

// Replay folds the stored log and checks it against the stored columns.
func (r GameRecord) Replay() (engine.State, error) {
	if len(r.Events) == 0 {
		return engine.State{}, fmt.Errorf("game %s: %w: empty log", r.ID, ErrCorruptRecord)
	}
	st := engine.Reduce(r.Events)
	board, err := DecodeBoard(r.Board)
	if err != nil {
		return engine.State{}, fmt.Errorf("game %s: %w: %w", r.ID, ErrCorruptRecord, err)
	}
	switch {
	case board != st.Board:
		return engine.State{}, fmt.Errorf("game %s: %w: board", r.ID, ErrCorruptRecord)
	case r.Pot != st.Pot || r.Stake != st.Stake:
		return engine.State{}, fmt.Errorf("game %s: %w: pot", r.ID, ErrCorruptRecord)
	case r.Phase != string(st.Phase) || r.Creator != string(st.Creator):
		return engine.State{}, fmt.Errorf("game %s: %w: phase", r.ID, ErrCorruptRecord)
	}
	return st, nil
}

func NewGameRecord(id string, version int, st engine.State, events []engine.Event) GameRecord {
	return GameRecord{
		ID:         id,
		Version:    version,
		Creator:    string(st.Creator),
		Opponent:   string(st.Opponent),
		Stake:      st.Stake,
		Pot:        st.Pot,
		Phase:      string(st.Phase),
		Result:     string(st.Result),
		Turn:       string(st.TurnPlayer()),
		FirstMover: string(st.Rules.FirstMover),
		Board:      EncodeBoard(st.Board),
		Events:     events,
	}
}

// EncodeBoard flattens the board row by row, one digit per cell.
func EncodeBoard(b engine.Board) string {
	var sb strings.Builder
	for _, row := range b {
		for _, c := range row {
			sb.WriteByte('0' + byte(c))
		}
	}
	return sb.String()
}

func DecodeBoard(s string) (engine.Board, error) {
	var b engine.Board
	if len(s) != engine.Size*engine.Size {
		return b, fmt.Errorf("board: want %d cells, got %d", engine.Size*engine.Size, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := engine.Cell(s[i] - '0')
		if c > engine.CellOpponent {
			return b, fmt.Errorf("board: bad cell %q at %d", s[i], i)
		}
		b[i/engine.Size][i%engine.Size] = c
	}
	return b, nil
}
