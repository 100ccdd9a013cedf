package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionStatusActive            = "active"
	SessionStatusEnded             = "ended"
	SessionStatusInsufficientFunds = "insufficient_funds"
)

const (
	EndReasonNormal            = "normal"
	EndReasonInsufficientFunds = "insufficient_funds"
)

// CallSession tracks one live call between a paying client and a model.
// LastConsumptionAt is the checkpoint up to which the call has been billed;
// it is advanced only by the settlement scheduler and only on confirmed
// debits, in whole minutes.
type CallSession struct {
	ID                uuid.UUID
	RoomName          string
	UserID            uuid.UUID
	ModelID           uuid.UUID
	Status            string
	StartedAt         time.Time
	EndedAt           *time.Time
	LastConsumptionAt time.Time
	TotalConsumed     int64
}

// BillableMinutes returns the number of whole unbilled minutes at 'now'.
func (s CallSession) BillableMinutes(now time.Time) int {
	if now.Before(s.LastConsumptionAt) {
		return 0
	}
	return int(now.Sub(s.LastConsumptionAt) / time.Minute)
}

// NextMinuteIndex returns the 1-based index of the first unbilled minute.
func (s CallSession) NextMinuteIndex() int {
	return int(s.LastConsumptionAt.Sub(s.StartedAt)/time.Minute) + 1
}
