package callsession

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/events"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/models"
	"github.com/nvoloshin/callmeter/internal/repository/postgres"
	"github.com/nvoloshin/callmeter/internal/testutil"
)

func TestCallSession(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	noop := logger.NewNoOpLogger()

	inTx := func(t *testing.T, fn func(svc *Service, bus *events.Bus)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			bus := events.NewBus(16, noop)
			fn(NewService(postgres.NewStorage(tx), bus, noop), bus)
		})
	}

	client := models.User{ID: uuid.New(), Username: "caller", Role: models.RoleClient}
	modelID := uuid.New()

	t.Run("Start", func(t *testing.T) {
		t.Run("creates active session and mirrors users", func(t *testing.T) {
			inTx(t, func(svc *Service, bus *events.Bus) {
				session, err := svc.Start(t.Context(), "room-1", client, modelID)

				require.NoError(t, err)
				require.Equal(t, models.SessionStatusActive, session.Status)
				require.Equal(t, client.ID, session.UserID)
				require.Equal(t, modelID, session.ModelID)
				require.True(t, session.LastConsumptionAt.Equal(session.StartedAt))
			})
		})

		t.Run("unknown users are created on the fly", func(t *testing.T) {
			inTx(t, func(svc *Service, bus *events.Bus) {
				anonymous := models.User{ID: uuid.New()}

				_, err := svc.Start(t.Context(), "room-2", anonymous, uuid.New())
				require.NoError(t, err, "identity mirroring must not require a username")
			})
		})

		t.Run("second active session rejected", func(t *testing.T) {
			inTx(t, func(svc *Service, bus *events.Bus) {
				_, err := svc.Start(t.Context(), "room-3", client, modelID)
				require.NoError(t, err)

				_, err = svc.Start(t.Context(), "room-4", client, modelID)
				require.ErrorIs(t, err, apperrors.ErrSessionAlreadyActive)
			})
		})
	})

	t.Run("End", func(t *testing.T) {
		t.Run("ends once and publishes", func(t *testing.T) {
			inTx(t, func(svc *Service, bus *events.Bus) {
				started, err := svc.Start(t.Context(), "room-5", client, modelID)
				require.NoError(t, err)

				ended, err := svc.End(t.Context(), "room-5", models.EndReasonNormal)
				require.NoError(t, err)
				require.Equal(t, models.SessionStatusEnded, ended.Status)
				require.NotNil(t, ended.EndedAt)

				event := <-bus.Events()
				require.Equal(t, events.SessionTerminated, event.Name)
				require.Equal(t, started.ID, event.SessionID)
				require.Equal(t, models.EndReasonNormal, event.Reason)

				_, err = svc.End(t.Context(), "room-5", models.EndReasonNormal)
				require.ErrorIs(t, err, apperrors.ErrSessionNotActive, "repeated end must not end twice")
			})
		})

		t.Run("unknown room", func(t *testing.T) {
			inTx(t, func(svc *Service, bus *events.Bus) {
				_, err := svc.End(t.Context(), "no-such-room", models.EndReasonNormal)
				require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
			})
		})
	})

	t.Run("ListActive", func(t *testing.T) {
		inTx(t, func(svc *Service, bus *events.Bus) {
			session, err := svc.Start(t.Context(), "room-6", client, modelID)
			require.NoError(t, err)

			active, err := svc.ListActive(t.Context())
			require.NoError(t, err)
			require.Len(t, active, 1)
			require.Equal(t, session.ID, active[0].ID)
		})
	})
}
