package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/events"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/metrics"
	"github.com/nvoloshin/callmeter/internal/models"
	"github.com/nvoloshin/callmeter/internal/pricing"
	"github.com/nvoloshin/callmeter/internal/repository"
	"github.com/nvoloshin/callmeter/internal/repository/postgres"
	"github.com/nvoloshin/callmeter/internal/testutil"
)

type mediaRecorder struct {
	rooms   []string
	reasons []string
	err     error
}

func (m *mediaRecorder) SignalTermination(_ context.Context, roomName string, reason string) error {
	m.rooms = append(m.rooms, roomName)
	m.reasons = append(m.reasons, reason)
	return m.err
}

func TestSettler(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	noop := logger.NewNoOpLogger()

	// half-dollar base minute: tier one (0.65) costs ceil(0.65/0.50*10) = 13
	snapshot := pricing.Snapshot{
		CoinsPerMinute:  10,
		BaseMinuteValue: decimal.RequireFromString("0.50"),
	}

	type fixture struct {
		storage repository.Storage
		settler *Settler
		media   *mediaRecorder
		bus     *events.Bus
		now     time.Time
	}

	inTx := func(t *testing.T, fn func(f fixture)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			media := &mediaRecorder{}
			bus := events.NewBus(16, noop)

			settler := NewSettler(storage, media, bus, metrics.New(), noop)
			now := time.Now().UTC().Truncate(time.Second)
			settler.now = func() time.Time { return now }

			fn(fixture{storage: storage, settler: settler, media: media, bus: bus, now: now})
		})
	}

	// seed a client with the given coin pools and a session that started
	// startedAgo before the frozen clock
	seed := func(t *testing.T, f fixture, purchased, gift int64, startedAgo time.Duration) models.CallSession {
		t.Helper()

		userID := uuid.New()
		modelID := uuid.New()

		_, err := f.storage.User().EnsureUser(t.Context(), userID, "caller", models.RoleClient)
		require.NoError(t, err)
		_, err = f.storage.User().EnsureUser(t.Context(), modelID, "answering", models.RoleModel)
		require.NoError(t, err)

		_, err = f.storage.Balance().GetOrCreateBalance(t.Context(), userID)
		require.NoError(t, err)
		_, err = f.storage.Balance().ApplyCredit(t.Context(), userID, purchased, gift, f.now)
		require.NoError(t, err)

		session, err := f.storage.Session().CreateSession(t.Context(), "room-"+uuid.NewString()[:8], userID, modelID, f.now.Add(-startedAgo))
		require.NoError(t, err)
		return session
	}

	t.Run("bills elapsed minutes and advances the checkpoint exactly", func(t *testing.T) {
		inTx(t, func(f fixture) {
			// started 6 minutes ago, three minutes already billed: the
			// next settlement owes minutes 4..6
			session := seed(t, f, 20, 30, 6*time.Minute)
			session, err := f.storage.Session().AdvanceCheckpoint(t.Context(), session.ID, 3, 30)
			require.NoError(t, err)
			require.Equal(t, 4, session.NextMinuteIndex())

			err = f.settler.SettleSession(t.Context(), session, snapshot)
			require.NoError(t, err)

			after, err := f.storage.Session().GetSession(t.Context(), session.ID, false)
			require.NoError(t, err)
			require.Equal(t, models.SessionStatusActive, after.Status)
			require.True(t, after.LastConsumptionAt.Equal(session.LastConsumptionAt.Add(3*time.Minute)),
				"checkpoint must advance by the billed minutes, not to wall clock")
			require.Equal(t, int64(30+39), after.TotalConsumed)

			balance, err := f.storage.Balance().GetBalance(t.Context(), session.UserID, false)
			require.NoError(t, err)
			require.Equal(t, int64(0), balance.PurchasedBalance, "purchased coins spent first")
			require.Equal(t, int64(11), balance.GiftBalance)
			require.Equal(t, int64(39), balance.TotalConsumed)

			records, err := f.storage.Balance().ListConsumption(t.Context(), session.UserID, 10)
			require.NoError(t, err)
			require.Len(t, records, 1)
			require.Equal(t, int64(39), records[0].CoinsConsumed)
			require.Equal(t, int64(20), records[0].PurchasedCoinsUsed)
			require.Equal(t, int64(19), records[0].GiftCoinsUsed)
			require.True(t, records[0].MinutesConsumed.Equal(decimal.NewFromInt(3)))

			event := <-f.bus.Events()
			require.Equal(t, events.BalanceDebited, event.Name)
			require.Equal(t, int64(39), event.Coins)
		})
	})

	t.Run("less than a whole minute owes nothing", func(t *testing.T) {
		inTx(t, func(f fixture) {
			session := seed(t, f, 100, 0, 45*time.Second)

			err := f.settler.SettleSession(t.Context(), session, snapshot)
			require.NoError(t, err)

			after, err := f.storage.Session().GetSession(t.Context(), session.ID, false)
			require.NoError(t, err)
			require.True(t, after.LastConsumptionAt.Equal(session.LastConsumptionAt))

			balance, err := f.storage.Balance().GetBalance(t.Context(), session.UserID, false)
			require.NoError(t, err)
			require.Equal(t, int64(100), balance.Total())
		})
	})

	t.Run("insufficient funds cuts the session off without billing", func(t *testing.T) {
		inTx(t, func(f fixture) {
			// two minutes owed at 13 coins each, only 20 in the pools
			session := seed(t, f, 15, 5, 2*time.Minute)

			err := f.settler.SettleSession(t.Context(), session, snapshot)
			require.NoError(t, err)

			after, err := f.storage.Session().GetSession(t.Context(), session.ID, false)
			require.NoError(t, err)
			require.Equal(t, models.SessionStatusInsufficientFunds, after.Status)
			require.NotNil(t, after.EndedAt)
			require.True(t, after.LastConsumptionAt.Equal(session.LastConsumptionAt),
				"unpaid minutes must stay unbilled")

			balance, err := f.storage.Balance().GetBalance(t.Context(), session.UserID, false)
			require.NoError(t, err)
			require.Equal(t, int64(20), balance.Total(), "no partial debit")

			records, err := f.storage.Balance().ListConsumption(t.Context(), session.UserID, 10)
			require.NoError(t, err)
			require.Empty(t, records)

			require.Equal(t, []string{session.RoomName}, f.media.rooms)
			require.Equal(t, []string{models.EndReasonInsufficientFunds}, f.media.reasons)

			event := <-f.bus.Events()
			require.Equal(t, events.SessionTerminated, event.Name)
			require.Equal(t, models.EndReasonInsufficientFunds, event.Reason)
		})
	})

	t.Run("media failure does not undo the cutoff", func(t *testing.T) {
		inTx(t, func(f fixture) {
			session := seed(t, f, 0, 5, 2*time.Minute)
			f.media.err = context.DeadlineExceeded

			err := f.settler.SettleSession(t.Context(), session, snapshot)
			require.NoError(t, err, "the media layer owns room teardown, billing state is already terminal")

			after, err := f.storage.Session().GetSession(t.Context(), session.ID, false)
			require.NoError(t, err)
			require.Equal(t, models.SessionStatusInsufficientFunds, after.Status)
		})
	})

	t.Run("held lock skips the settlement with zero debits", func(t *testing.T) {
		inTx(t, func(f fixture) {
			session := seed(t, f, 100, 0, 5*time.Minute)

			require.True(t, f.settler.locks.TryLock(session.ID))
			defer f.settler.locks.Unlock(session.ID)

			err := f.settler.SettleSession(t.Context(), session, snapshot)
			require.ErrorIs(t, err, apperrors.ErrSettlementInProgress)

			balance, err := f.storage.Balance().GetBalance(t.Context(), session.UserID, false)
			require.NoError(t, err)
			require.Equal(t, int64(100), balance.Total())

			after, err := f.storage.Session().GetSession(t.Context(), session.ID, false)
			require.NoError(t, err)
			require.True(t, after.LastConsumptionAt.Equal(session.LastConsumptionAt))
		})
	})

	t.Run("ended session preempts billing silently", func(t *testing.T) {
		inTx(t, func(f fixture) {
			session := seed(t, f, 100, 0, 5*time.Minute)
			_, err := f.storage.Session().EndSession(t.Context(), session.ID, f.now)
			require.NoError(t, err)

			// settle with the stale listing of the session
			err = f.settler.SettleSession(t.Context(), session, snapshot)
			require.NoError(t, err)

			balance, err := f.storage.Balance().GetBalance(t.Context(), session.UserID, false)
			require.NoError(t, err)
			require.Equal(t, int64(100), balance.Total(), "a hangup before settling wins over billing")
		})
	})

	t.Run("degraded snapshot bills the flat rate", func(t *testing.T) {
		inTx(t, func(f fixture) {
			session := seed(t, f, 100, 0, 2*time.Minute)

			degraded := pricing.NewSnapshot(10, nil)
			require.True(t, degraded.Degraded)

			err := f.settler.SettleSession(t.Context(), session, degraded)
			require.NoError(t, err)

			balance, err := f.storage.Balance().GetBalance(t.Context(), session.UserID, false)
			require.NoError(t, err)
			require.Equal(t, int64(80), balance.Total(), "two minutes at the flat ten-coin rate")
		})
	})
}
