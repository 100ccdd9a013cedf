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

type SessionRepo struct {
	DB DBTX
}

const sessionColumns = `id, room_name, user_id, model_id, status, started_at, ended_at, last_consumption_at, total_consumed`

func (r *SessionRepo) CreateSession(ctx context.Context, roomName string, userID uuid.UUID, modelID uuid.UUID, startedAt time.Time) (models.CallSession, error) {
	createSession := `
	INSERT INTO call_sessions (room_name, user_id, model_id, status, started_at, last_consumption_at)
	VALUES ($1, $2, $3, 'active', $4, $4)
	RETURNING ` + sessionColumns

	rows, _ := r.DB.Query(ctx, createSession, roomName, userID, modelID, startedAt)
	session, err := pgx.CollectOneRow(rows, rowToSession)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == "call_sessions_one_active_per_user":
				return session, apperrors.ErrSessionAlreadyActive
			case pgErr.Code == pgerrcode.UniqueViolation:
				return session, apperrors.ErrRoomNameTaken
			case pgErr.Code == pgerrcode.ForeignKeyViolation:
				return session, apperrors.ErrUserNotFound
			}
		}

		return session, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

func (r *SessionRepo) GetSession(ctx context.Context, id uuid.UUID, forUpdate bool) (models.CallSession, error) {
	getSession := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1`
	if forUpdate {
		getSession += " FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, getSession, id)
	return collectSession(rows)
}

func (r *SessionRepo) GetSessionByRoom(ctx context.Context, roomName string) (models.CallSession, error) {
	getSession := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE room_name = $1`

	rows, _ := r.DB.Query(ctx, getSession, roomName)
	return collectSession(rows)
}

func (r *SessionRepo) ListActive(ctx context.Context) ([]models.CallSession, error) {
	listActive := `
	SELECT ` + sessionColumns + ` FROM call_sessions
	WHERE status = 'active'
	ORDER BY started_at
	`

	rows, _ := r.DB.Query(ctx, listActive)
	sessions, err := pgx.CollectRows(rows, rowToSession)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepo) AdvanceCheckpoint(ctx context.Context, id uuid.UUID, minutes int, coins int64) (models.CallSession, error) {
	advanceCheckpoint := `
	UPDATE call_sessions
	SET last_consumption_at = last_consumption_at + ($2 * interval '1 minute'),
	    total_consumed = total_consumed + $3
	WHERE id = $1 AND status = 'active'
	RETURNING ` + sessionColumns

	rows, _ := r.DB.Query(ctx, advanceCheckpoint, id, minutes, coins)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		return session, apperrors.ErrSessionNotActive
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

func (r *SessionRepo) MarkInsufficientFunds(ctx context.Context, id uuid.UUID) (models.CallSession, error) {
	markInsufficientFunds := `
	UPDATE call_sessions
	SET status = 'insufficient_funds'
	WHERE id = $1 AND status = 'active'
	RETURNING ` + sessionColumns

	rows, _ := r.DB.Query(ctx, markInsufficientFunds, id)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		return session, apperrors.ErrSessionNotActive
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

func (r *SessionRepo) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) (models.CallSession, error) {
	endSession := `
	UPDATE call_sessions
	SET status = 'ended', ended_at = $2
	WHERE id = $1 AND ended_at IS NULL
	RETURNING ` + sessionColumns

	rows, _ := r.DB.Query(ctx, endSession, id, endedAt)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		// either unknown id or ended_at already set
		return session, apperrors.ErrSessionNotActive
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

func collectSession(rows pgx.Rows) (models.CallSession, error) {
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		return session, apperrors.ErrSessionNotFound
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

func rowToSession(row pgx.CollectableRow) (models.CallSession, error) {
	var s models.CallSession
	err := row.Scan(&s.ID, &s.RoomName, &s.UserID, &s.ModelID, &s.Status, &s.StartedAt, &s.EndedAt, &s.LastConsumptionAt, &s.TotalConsumed)
	return s, err
}
