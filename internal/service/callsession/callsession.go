package callsession

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nvoloshin/callmeter/internal/events"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/models"
	"github.com/nvoloshin/callmeter/internal/repository"
)

// Service is the call session registry. Sessions are created when both call
// participants joined the room and are advanced only by the settlement
// scheduler or ended by explicit events from the media layer.
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

// Start registers an accepted call as an active session. A second active
// session for the same paying user is rejected at the storage layer.
func (s *Service) Start(ctx context.Context, roomName string, client models.User, modelID uuid.UUID) (models.CallSession, error) {
	var session models.CallSession

	err := s.storage.InTx(ctx, func(txStorage repository.Storage) error {
		// mirror the external identities for referential integrity
		username := client.Username
		if username == "" {
			username = client.ID.String()
		}
		if _, err := txStorage.User().EnsureUser(ctx, client.ID, username, models.RoleClient); err != nil {
			return err
		}
		if _, err := txStorage.User().EnsureUser(ctx, modelID, modelID.String(), models.RoleModel); err != nil {
			return err
		}

		var err error
		session, err = txStorage.Session().CreateSession(ctx, roomName, client.ID, modelID, time.Now())
		return err
	})
	if err != nil {
		return session, err
	}

	s.logger.Info("Call session started", "room_name", roomName, "user_id", client.ID, "model_id", modelID)
	return session, nil
}

// End closes the session exactly once and tells the notification subsystem
// about it. Repeated end events from the media layer are errors for the
// caller to swallow.
func (s *Service) End(ctx context.Context, roomName string, reason string) (models.CallSession, error) {
	session, err := s.storage.Session().GetSessionByRoom(ctx, roomName)
	if err != nil {
		return session, err
	}

	ended, err := s.storage.Session().EndSession(ctx, session.ID, time.Now())
	if err != nil {
		return ended, fmt.Errorf("can't end session in room %s: %w", roomName, err)
	}

	s.bus.Publish(events.Event{
		Name:      events.SessionTerminated,
		UserID:    ended.UserID,
		SessionID: ended.ID,
		Reason:    reason,
	})

	s.logger.Info("Call session ended", "room_name", roomName, "reason", reason, "total_consumed", ended.TotalConsumed)
	return ended, nil
}

// GetByRoom returns the session for the room.
func (s *Service) GetByRoom(ctx context.Context, roomName string) (models.CallSession, error) {
	return s.storage.Session().GetSessionByRoom(ctx, roomName)
}

// ListActive returns every session the scheduler should settle.
func (s *Service) ListActive(ctx context.Context) ([]models.CallSession, error) {
	return s.storage.Session().ListActive(ctx)
}
