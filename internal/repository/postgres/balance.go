package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/models"
)

type BalanceRepo struct {
	DB DBTX
}

func (r *BalanceRepo) GetOrCreateBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	const createBalance = `
	INSERT INTO balances (user_id)
	VALUES ($1)
	ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.DB.Exec(ctx, createBalance, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return models.Balance{}, apperrors.ErrUserNotFound
		}

		return models.Balance{}, fmt.Errorf("db error: %w", err)
	}

	return r.GetBalance(ctx, userID, false)
}

func (r *BalanceRepo) GetBalance(ctx context.Context, userID uuid.UUID, forUpdate bool) (models.Balance, error) {
	getBalance := `
	SELECT id, user_id, purchased_balance, gift_balance, total_purchased, total_consumed, last_purchase_at
	FROM balances
	WHERE user_id = $1
	`
	if forUpdate {
		getBalance += " FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, getBalance, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

func (r *BalanceRepo) ApplyDebit(ctx context.Context, userID uuid.UUID, purchased int64, gift int64) (models.Balance, error) {
	const applyDebit = `
	UPDATE balances
	SET purchased_balance = purchased_balance - $2,
	    gift_balance = gift_balance - $3,
	    total_consumed = total_consumed + $2 + $3
	WHERE user_id = $1
	RETURNING id, user_id, purchased_balance, gift_balance, total_purchased, total_consumed, last_purchase_at
	`

	rows, _ := r.DB.Query(ctx, applyDebit, userID, purchased, gift)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			// Balance pools must never go negative, the caller computed a
			// bad split or skipped the funds check
			return balance, apperrors.ErrInsufficientFunds
		}

		return balance, fmt.Errorf("db error: %w", err)
	}
}

func (r *BalanceRepo) ApplyCredit(ctx context.Context, userID uuid.UUID, purchased int64, gift int64, at time.Time) (models.Balance, error) {
	const applyCredit = `
	UPDATE balances
	SET purchased_balance = purchased_balance + $2,
	    gift_balance = gift_balance + $3,
	    total_purchased = total_purchased + $2,
	    last_purchase_at = CASE WHEN $2 > 0 THEN $4 ELSE last_purchase_at END
	WHERE user_id = $1
	RETURNING id, user_id, purchased_balance, gift_balance, total_purchased, total_consumed, last_purchase_at
	`

	rows, _ := r.DB.Query(ctx, applyCredit, userID, purchased, gift, at)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

func (r *BalanceRepo) CreateConsumption(ctx context.Context, record models.ConsumptionRecord) (models.ConsumptionRecord, error) {
	const createConsumption = `
	INSERT INTO consumption_records (
		user_id, session_id, minutes_consumed, coins_consumed,
		purchased_coins_used, gift_coins_used, balance_after, consumed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, user_id, session_id, minutes_consumed, coins_consumed,
	          purchased_coins_used, gift_coins_used, balance_after, consumed_at
	`

	rows, _ := r.DB.Query(ctx, createConsumption,
		record.UserID,
		record.SessionID,
		record.MinutesConsumed.Round(3),
		record.CoinsConsumed,
		record.PurchasedCoinsUsed,
		record.GiftCoinsUsed,
		record.BalanceAfter,
		record.ConsumedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToConsumption)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrUserNotFound
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func (r *BalanceRepo) ListConsumption(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConsumptionRecord, error) {
	const listConsumption = `
	SELECT id, user_id, session_id, minutes_consumed, coins_consumed,
	       purchased_coins_used, gift_coins_used, balance_after, consumed_at
	FROM consumption_records
	WHERE user_id = $1
	ORDER BY consumed_at DESC
	LIMIT $2
	`

	if limit <= 0 {
		limit = 100
	}

	rows, _ := r.DB.Query(ctx, listConsumption, userID, limit)
	records, err := pgx.CollectRows(rows, rowToConsumption)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return records, nil
}

func (r *BalanceRepo) CreateTransaction(ctx context.Context, transaction models.Transaction) (models.Transaction, error) {
	const createTransaction = `
	INSERT INTO transactions (user_id, type, amount, source, reference_id, balance_after)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, user_id, type, amount, source, reference_id, balance_after, created_at
	`

	rows, _ := r.DB.Query(ctx, createTransaction,
		transaction.UserID,
		transaction.Type,
		transaction.Amount,
		transaction.Source,
		transaction.ReferenceID,
		transaction.BalanceAfter,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return created, apperrors.ErrDuplicateTransaction
			case pgerrcode.ForeignKeyViolation:
				return created, apperrors.ErrUserNotFound
			}
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func (r *BalanceRepo) ListTransactions(ctx context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error) {
	const listTransactions = `
	SELECT id, user_id, type, amount, source, reference_id, balance_after, created_at
	FROM transactions
	WHERE user_id = $1 AND ($2::varchar[] IS NULL OR type = ANY($2))
	ORDER BY created_at DESC
	`

	rows, _ := r.DB.Query(ctx, listTransactions, userID, types)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.ID, &b.UserID, &b.PurchasedBalance, &b.GiftBalance, &b.TotalPurchased, &b.TotalConsumed, &b.LastPurchaseAt)
	return b, err
}

func rowToConsumption(row pgx.CollectableRow) (models.ConsumptionRecord, error) {
	var c models.ConsumptionRecord
	err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &c.MinutesConsumed, &c.CoinsConsumed, &c.PurchasedCoinsUsed, &c.GiftCoinsUsed, &c.BalanceAfter, &c.ConsumedAt)
	return c, err
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Source, &t.ReferenceID, &t.BalanceAfter, &t.CreatedAt)
	return t, err
}
