package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/handlers/render"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/models"
)

type sessionResponse struct {
	ID                uuid.UUID  `json:"id"`
	RoomName          string     `json:"room_name"`
	UserID            uuid.UUID  `json:"user_id"`
	ModelID           uuid.UUID  `json:"model_id"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	LastConsumptionAt time.Time  `json:"last_consumption_at"`
	TotalConsumed     int64      `json:"total_consumed"`
}

func toSessionResponse(s models.CallSession) sessionResponse {
	return sessionResponse{
		ID:                s.ID,
		RoomName:          s.RoomName,
		UserID:            s.UserID,
		ModelID:           s.ModelID,
		Status:            s.Status,
		StartedAt:         s.StartedAt,
		EndedAt:           s.EndedAt,
		LastConsumptionAt: s.LastConsumptionAt,
		TotalConsumed:     s.TotalConsumed,
	}
}

// The media layer reports a room going live. The client identity travels in
// the webhook body, not the bearer token: the token belongs to the media
// service itself.
func handleStartSession(sessionService sessionService, l logger.Logger) http.Handler {
	type request struct {
		RoomName string    `json:"room_name" validate:"required"`
		UserID   uuid.UUID `json:"user_id" validate:"required"`
		Username string    `json:"username"`
		ModelID  uuid.UUID `json:"model_id" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		client := models.User{ID: req.UserID, Username: req.Username, Role: models.RoleClient}
		session, err := sessionService.Start(r.Context(), req.RoomName, client, req.ModelID)

		switch {
		case err == nil:
			render.JSONWithStatus(w, toSessionResponse(session), http.StatusCreated)
		case errors.Is(err, apperrors.ErrSessionAlreadyActive):
			render.ServiceError(w, "Client already has an active session", http.StatusConflict)
		case errors.Is(err, apperrors.ErrRoomNameTaken):
			render.ServiceError(w, "Room name already in use", http.StatusConflict)
		default:
			l.Error("Failed to start session", "error", err, "room_name", req.RoomName)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleEndSession(sessionService sessionService, l logger.Logger) http.Handler {
	type request struct {
		Reason string `json:"reason" validate:"omitempty,oneof=normal insufficient_funds"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomName := r.PathValue("room")

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}
		if req.Reason == "" {
			req.Reason = models.EndReasonNormal
		}

		session, err := sessionService.End(r.Context(), roomName, req.Reason)

		switch {
		case err == nil:
			render.JSON(w, toSessionResponse(session))
		case errors.Is(err, apperrors.ErrSessionNotFound):
			render.ServiceError(w, "No session for this room", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrSessionNotActive):
			// the scheduler may have cut the session off first
			render.ServiceError(w, "Session already ended", http.StatusConflict)
		default:
			l.Error("Failed to end session", "error", err, "room_name", roomName)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleGetSession(sessionService sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomName := r.PathValue("room")

		session, err := sessionService.GetByRoom(r.Context(), roomName)

		switch {
		case err == nil:
			render.JSON(w, toSessionResponse(session))
		case errors.Is(err, apperrors.ErrSessionNotFound):
			render.ServiceError(w, "No session for this room", http.StatusNotFound)
		default:
			l.Error("Failed to get session", "error", err, "room_name", roomName)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
