package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleClient = "client"
	RoleModel  = "model"

	// Service roles carried by machine tokens, never stored in users.
	RoleService = "service"
	RoleAdmin   = "admin"
)

// User is a thin mirror of the external auth system account.
// Only the identifier and the role are meaningful here.
type User struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Username  string
	Role      string
}
