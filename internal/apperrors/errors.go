package apperrors

import (
	"errors"
)

var (
	ErrUserNotFound = errors.New("user not found")

	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateTransaction = errors.New("transaction reference already applied")

	ErrSessionNotFound      = errors.New("call session not found")
	ErrSessionNotActive     = errors.New("call session is not active")
	ErrSessionAlreadyActive = errors.New("user already has an active call session")
	ErrRoomNameTaken        = errors.New("room name already taken")

	ErrSettlementInProgress = errors.New("settlement already running for this session")
)
