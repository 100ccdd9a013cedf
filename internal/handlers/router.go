package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nvoloshin/callmeter/internal/handlers/middleware"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/models"
	"github.com/nvoloshin/callmeter/internal/service/ledger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authenticator authenticator,
	sessionService sessionService,
	ledgerService ledgerService,
	settingsCache settingsCache,
	metricsHandler http.Handler,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(authenticator)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}
	// webhooks and callbacks come with machine tokens, not user tokens
	withServiceAuth := func(h http.Handler) http.Handler {
		return authMiddleware(middleware.RequireRole(models.RoleService, models.RoleAdmin)(h))
	}
	withAdminAuth := func(h http.Handler) http.Handler {
		return authMiddleware(middleware.RequireRole(models.RoleAdmin)(h))
	}

	api := http.NewServeMux()

	api.Handle("POST /sessions", withServiceAuth(handleStartSession(sessionService, logger)))
	api.Handle("POST /sessions/{room}/end", withServiceAuth(handleEndSession(sessionService, logger)))
	api.Handle("GET /sessions/{room}", withServiceAuth(handleGetSession(sessionService, logger)))

	api.Handle("GET /balance", withAuth(handleGetBalance(ledgerService, logger)))
	api.Handle("GET /balance/consumption", withAuth(handleListConsumption(ledgerService, logger)))
	api.Handle("GET /transactions", withAuth(handleListTransactions(ledgerService, logger)))

	api.Handle("POST /credits", withServiceAuth(handleCredit(ledgerService, logger)))

	api.Handle("GET /pricing/earnings", withAuth(handleEarningsPreview()))

	api.Handle("POST /admin/settings/invalidate", withAdminAuth(handleInvalidateSettings(settingsCache, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /health", handleHealth())
	root.Handle("GET /metrics", metricsHandler)

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

type authenticator interface {
	// Verify the bearer token of the request and return the identity it
	// carries. Any verification error means the request is anonymous.
	UserFromRequest(r *http.Request) (models.User, error)
}

type sessionService interface {
	// Start a billing session for the room
	// Has to return apperrors.ErrSessionAlreadyActive if the client already has one
	// Has to return apperrors.ErrRoomNameTaken if the room name is in use
	Start(ctx context.Context, roomName string, client models.User, modelID uuid.UUID) (models.CallSession, error)

	// End the session of the room
	// Has to return apperrors.ErrSessionNotFound if the room has no session
	End(ctx context.Context, roomName string, reason string) (models.CallSession, error)

	GetByRoom(ctx context.Context, roomName string) (models.CallSession, error)
}

type ledgerService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Credit coins to a user
	// Replayed ReferenceID is a success no-op
	Credit(ctx context.Context, p ledger.CreditParams) (models.Balance, error)

	ListConsumption(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConsumptionRecord, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, types []string) ([]models.Transaction, error)
}

type settingsCache interface {
	Invalidate(ctx context.Context) error
}
