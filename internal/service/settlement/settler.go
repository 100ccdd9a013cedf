package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/events"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/metrics"
	"github.com/nvoloshin/callmeter/internal/models"
	"github.com/nvoloshin/callmeter/internal/pricing"
	"github.com/nvoloshin/callmeter/internal/repository"
	"github.com/nvoloshin/callmeter/internal/service/ledger"
)

type mediaClient interface {
	SignalTermination(ctx context.Context, roomName string, reason string) error
}

// Settler settles one session at a time: computes the whole minutes owed
// since the checkpoint, debits them and moves the checkpoint forward, in one
// transaction. A session whose balance can not cover the owed minutes is cut
// off and the media layer told to tear the room down.
type Settler struct {
	storage repository.Storage
	media   mediaClient
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  logger.Logger
	locks   *sessionLocks

	now func() time.Time
}

func NewSettler(storage repository.Storage, media mediaClient, bus *events.Bus, m *metrics.Metrics, l logger.Logger) *Settler {
	return &Settler{
		storage: storage,
		media:   media,
		bus:     bus,
		metrics: m,
		logger:  l,
		locks:   newSessionLocks(),
		now:     time.Now,
	}
}

// SettleSession bills the session up to now. Returns
// apperrors.ErrSettlementInProgress when an overlapping settlement for the
// same session holds the lock; that invocation is skipped, never queued.
func (s *Settler) SettleSession(ctx context.Context, session models.CallSession, snapshot pricing.Snapshot) error {
	if !s.locks.TryLock(session.ID) {
		s.logger.Warn("Overlapping settlement skipped", "session_id", session.ID, "room_name", session.RoomName)
		s.metrics.SkippedSettlements.Inc()
		return apperrors.ErrSettlementInProgress
	}
	defer s.locks.Unlock(session.ID)

	now := s.now()

	var owed int64
	var settledMinutes int

	err := s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		// re-read under a row lock: an external hangup between listing and
		// settling must win over billing
		fresh, err := txStorage.Session().GetSession(ctx, session.ID, true)
		if err != nil {
			return err
		}
		if fresh.Status != models.SessionStatusActive {
			return apperrors.ErrSessionNotActive
		}

		elapsed := fresh.BillableMinutes(now)
		if elapsed < 1 {
			// nothing owed yet this tick
			return nil
		}

		// a delayed tick bills all missed minutes in one call, with the
		// same minute indices on-time ticks would have used
		owed = snapshot.ProgressiveCoins(fresh.NextMinuteIndex(), elapsed)

		_, err = ledger.PerformDebit(ctx, txStorage, ledger.DebitParams{
			UserID:    fresh.UserID,
			SessionID: fresh.ID,
			Coins:     owed,
			Minutes:   decimal.NewFromInt(int64(elapsed)),
			Now:       now,
		})
		if err != nil {
			return err
		}

		// advance by exactly the billed minutes, never to "now", so the
		// checkpoint stays minute-aligned with the call start
		_, err = txStorage.Session().AdvanceCheckpoint(ctx, fresh.ID, elapsed, owed)
		if err != nil {
			return err
		}

		settledMinutes = elapsed
		return nil
	})

	switch {
	case err == nil:
		if settledMinutes > 0 {
			s.metrics.SettledMinutes.Add(float64(settledMinutes))
			s.metrics.DebitedCoins.Add(float64(owed))
			s.bus.Publish(events.Event{
				Name:      events.BalanceDebited,
				UserID:    session.UserID,
				SessionID: session.ID,
				Coins:     owed,
			})
			s.logger.Debug("Session settled", "session_id", session.ID, "minutes", settledMinutes, "coins", owed)
		}
		return nil

	case errors.Is(err, apperrors.ErrInsufficientFunds):
		// the unpaid minutes stay unbilled: the checkpoint was not advanced
		// and no consumption record was written
		return s.terminate(ctx, session)

	case errors.Is(err, apperrors.ErrSessionNotActive), errors.Is(err, apperrors.ErrSessionNotFound):
		s.logger.Debug("Session no longer active, billing preempted", "session_id", session.ID)
		return nil

	default:
		// transient storage failure: nothing was committed, the next tick
		// retries from the same checkpoint
		return fmt.Errorf("settlement failed for session %s: %w", session.ID, err)
	}
}

func (s *Settler) terminate(ctx context.Context, session models.CallSession) error {
	_, err := s.storage.Session().MarkInsufficientFunds(ctx, session.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionNotActive) {
			// a hangup raced the cutoff, nothing left to do
			return nil
		}
		return fmt.Errorf("can't mark session %s out of funds: %w", session.ID, err)
	}

	s.metrics.InsufficientFunds.Inc()
	s.bus.Publish(events.Event{
		Name:      events.SessionTerminated,
		UserID:    session.UserID,
		SessionID: session.ID,
		Reason:    models.EndReasonInsufficientFunds,
	})
	s.logger.Info("Session out of funds, terminating", "session_id", session.ID, "room_name", session.RoomName)

	if err := s.media.SignalTermination(ctx, session.RoomName, models.EndReasonInsufficientFunds); err != nil {
		// the session is already billing-terminal; the media layer has its
		// own room lifecycle and will report the teardown eventually
		s.logger.Error("Failed to signal room termination", "error", err, "room_name", session.RoomName)
	}

	return nil
}
