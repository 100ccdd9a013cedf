package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nvoloshin/callmeter/internal/models"
)

// Storage combines every repo and the transaction runner.
// Implementations must guarantee that repos obtained from the Storage passed
// into InTx share one database transaction.
type Storage interface {
	User() UserRepo
	Balance() BalanceRepo
	Session() SessionRepo
	Catalog() CatalogRepo
	Settings() SettingsRepo

	// InTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Ensure the user row exists for the given external identity.
	// Safe to call repeatedly, the existing row wins.
	EnsureUser(ctx context.Context, id uuid.UUID, username string, role string) (models.User, error)

	// Get user by id
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// Balance repository interface
//
// Mutating methods only move numbers, they know nothing about the debit
// ordering rules. The ledger service owns those and must call them with the
// balance row locked (GetBalance with forUpdate inside InTx).
type BalanceRepo interface {
	// Fetch the balance, creating a zero-value row on first need
	GetOrCreateBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Get the balance; forUpdate locks the row for the transaction
	// If balance not found must return apperrors.ErrUserNotFound
	GetBalance(ctx context.Context, userID uuid.UUID, forUpdate bool) (models.Balance, error)

	// Decrement the pools by the given split and bump total_consumed
	ApplyDebit(ctx context.Context, userID uuid.UUID, purchased int64, gift int64) (models.Balance, error)

	// Increment the pools and lifetime purchase counters
	ApplyCredit(ctx context.Context, userID uuid.UUID, purchased int64, gift int64, at time.Time) (models.Balance, error)

	// Append one consumption record, the audit trail of a debit
	CreateConsumption(ctx context.Context, record models.ConsumptionRecord) (models.ConsumptionRecord, error)

	// List consumption records, newest first
	ListConsumption(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConsumptionRecord, error)

	// Append one transaction record
	// A repeated (reference_id, type) pair must return apperrors.ErrDuplicateTransaction
	CreateTransaction(ctx context.Context, transaction models.Transaction) (models.Transaction, error)

	// List transactions, newest first, optionally filtered by types
	ListTransactions(ctx context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error)
}

// Call session repository interface
type SessionRepo interface {
	// Create session in 'active' status with last_consumption_at = started_at
	// Must return apperrors.ErrSessionAlreadyActive when the user already has
	// an active session and apperrors.ErrRoomNameTaken on a room name clash
	CreateSession(ctx context.Context, roomName string, userID uuid.UUID, modelID uuid.UUID, startedAt time.Time) (models.CallSession, error)

	// Get session by id; forUpdate locks the row for the transaction
	// If not found must return apperrors.ErrSessionNotFound
	GetSession(ctx context.Context, id uuid.UUID, forUpdate bool) (models.CallSession, error)

	// Get session by room name
	GetSessionByRoom(ctx context.Context, roomName string) (models.CallSession, error)

	// List sessions currently in 'active' status
	ListActive(ctx context.Context) ([]models.CallSession, error)

	// Move last_consumption_at forward by exactly 'minutes' minutes and
	// accumulate debited coins. Only touches active sessions; must return
	// apperrors.ErrSessionNotActive otherwise
	AdvanceCheckpoint(ctx context.Context, id uuid.UUID, minutes int, coins int64) (models.CallSession, error)

	// Transition an active session to 'insufficient_funds'
	// Must return apperrors.ErrSessionNotActive for non-active sessions
	MarkInsufficientFunds(ctx context.Context, id uuid.UUID) (models.CallSession, error)

	// Set ended_at and 'ended' status, exactly once
	// Must return apperrors.ErrSessionNotActive when ended_at is already set
	EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) (models.CallSession, error)
}

// Coin package catalog interface
type CatalogRepo interface {
	CreatePackage(ctx context.Context, pack models.CoinPackage) (models.CoinPackage, error)
	ListActivePackages(ctx context.Context) ([]models.CoinPackage, error)
}

// Platform settings interface
type SettingsRepo interface {
	// Get setting value; a missing key returns ok=false, not an error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string) error
}
