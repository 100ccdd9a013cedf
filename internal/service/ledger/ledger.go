package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/events"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/models"
	"github.com/nvoloshin/callmeter/internal/repository"
)

// ErrNothingToCredit means the credit would not add a single coin.
var ErrNothingToCredit = errors.New("nothing to credit")

// Service owns every balance mutation. Debits spend the purchased pool
// before the gift pool: purchased coins represent revenue-bearing minutes
// and the platform's claim on paid usage must be settled first.
type Service struct {
	storage repository.Storage
	bus     *events.Bus
	logger  logger.Logger
}

func NewService(storage repository.Storage, bus *events.Bus, l logger.Logger) *Service {
	return &Service{
		storage: storage,
		bus:     bus,
		logger:  l,
	}
}

type DebitParams struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Coins     int64
	Minutes   decimal.Decimal
	Now       time.Time
}

type DebitResult struct {
	PurchasedUsed int64
	GiftUsed      int64
	Balance       models.Balance
	Record        models.ConsumptionRecord
}

// PerformDebit removes coins from the user's balance inside the caller's
// transaction: lock the balance row, split the amount over the two pools,
// write the pools and append the consumption record. The caller must pass a
// transaction-scoped storage; the row lock serializes concurrent debits and
// credits for the same user.
//
// An insufficient combined balance returns apperrors.ErrInsufficientFunds
// with nothing written: there are no partial debits.
func PerformDebit(ctx context.Context, storage repository.Storage, p DebitParams) (DebitResult, error) {
	var result DebitResult

	if p.Coins <= 0 {
		return result, fmt.Errorf("debit of %d coins is not meaningful", p.Coins)
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}

	if _, err := storage.Balance().GetOrCreateBalance(ctx, p.UserID); err != nil {
		return result, err
	}

	balance, err := storage.Balance().GetBalance(ctx, p.UserID, true)
	if err != nil {
		return result, err
	}

	if balance.Total() < p.Coins {
		return result, fmt.Errorf("user %s has %d coins, needs %d: %w",
			p.UserID, balance.Total(), p.Coins, apperrors.ErrInsufficientFunds)
	}

	// purchased first, gift second
	purchasedUsed := min(balance.PurchasedBalance, p.Coins)
	giftUsed := p.Coins - purchasedUsed

	balance, err = storage.Balance().ApplyDebit(ctx, p.UserID, purchasedUsed, giftUsed)
	if err != nil {
		return result, err
	}

	record, err := storage.Balance().CreateConsumption(ctx, models.ConsumptionRecord{
		UserID:             p.UserID,
		SessionID:          p.SessionID,
		MinutesConsumed:    p.Minutes,
		CoinsConsumed:      p.Coins,
		PurchasedCoinsUsed: purchasedUsed,
		GiftCoinsUsed:      giftUsed,
		BalanceAfter:       balance.Total(),
		ConsumedAt:         p.Now,
	})
	if err != nil {
		return result, err
	}

	return DebitResult{
		PurchasedUsed: purchasedUsed,
		GiftUsed:      giftUsed,
		Balance:       balance,
		Record:        record,
	}, nil
}

// Debit runs PerformDebit in its own transaction and publishes the balance
// event after commit.
func (s *Service) Debit(ctx context.Context, p DebitParams) (DebitResult, error) {
	var result DebitResult

	err := s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		var err error
		result, err = PerformDebit(ctx, txStorage, p)
		return err
	})
	if err != nil {
		return result, err
	}

	s.bus.Publish(events.Event{
		Name:      events.BalanceDebited,
		UserID:    p.UserID,
		SessionID: p.SessionID,
		Coins:     p.Coins,
	})

	return result, nil
}

type CreditParams struct {
	UserID      uuid.UUID
	Purchased   int64
	Gift        int64
	Source      string
	ReferenceID string
}

// Credit adds coins to the user's pools and appends one transaction record
// per coin type. The whole credit is idempotent on ReferenceID: replaying an
// already applied reference (a retried payment webhook) changes nothing and
// is reported as success.
func (s *Service) Credit(ctx context.Context, p CreditParams) (models.Balance, error) {
	var balance models.Balance

	if p.Purchased < 0 || p.Gift < 0 || p.Purchased+p.Gift <= 0 {
		return balance, fmt.Errorf("%d purchased and %d gift coins: %w", p.Purchased, p.Gift, ErrNothingToCredit)
	}
	if p.ReferenceID == "" {
		return balance, errors.New("credit requires a reference id")
	}

	err := s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		if _, err := txStorage.Balance().GetOrCreateBalance(ctx, p.UserID); err != nil {
			return err
		}

		// lock the row so the balance_after totals are consistent
		if _, err := txStorage.Balance().GetBalance(ctx, p.UserID, true); err != nil {
			return err
		}

		updated, err := txStorage.Balance().ApplyCredit(ctx, p.UserID, p.Purchased, p.Gift, time.Now())
		if err != nil {
			return err
		}

		for coinType, amount := range map[string]int64{
			models.TransactionTypePurchased: p.Purchased,
			models.TransactionTypeGift:      p.Gift,
		} {
			if amount == 0 {
				continue
			}

			_, err := txStorage.Balance().CreateTransaction(ctx, models.Transaction{
				UserID:       p.UserID,
				Type:         coinType,
				Amount:       amount,
				Source:       p.Source,
				ReferenceID:  p.ReferenceID,
				BalanceAfter: updated.Total(),
			})
			if err != nil {
				// a duplicate rolls the whole credit back
				return err
			}
		}

		balance = updated
		return nil
	})

	switch {
	case err == nil:
		s.bus.Publish(events.Event{
			Name:   events.BalanceCredited,
			UserID: p.UserID,
			Coins:  p.Purchased + p.Gift,
		})
		return balance, nil

	case errors.Is(err, apperrors.ErrDuplicateTransaction):
		// replayed external callback: success, but nothing happened
		s.logger.Info("Credit replay suppressed", "user_id", p.UserID, "reference_id", p.ReferenceID)
		return s.GetBalance(ctx, p.UserID)

	default:
		return balance, err
	}
}

// GetBalance fetches the balance, creating a zero one on first need.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	return s.storage.Balance().GetOrCreateBalance(ctx, userID)
}

// ListConsumption returns the newest consumption records of the user.
func (s *Service) ListConsumption(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConsumptionRecord, error) {
	return s.storage.Balance().ListConsumption(ctx, userID, limit)
}

// ListTransactions returns the user's balance-increasing events.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error) {
	return s.storage.Balance().ListTransactions(ctx, userID, types)
}
