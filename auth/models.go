package auth

import "time"

type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSupervisor, RoleAdmin:
		return true
	default:
		return false
	}
}

// Supervisor is a person allowed to answer help requests and curate learned
// answers. It mirrors the supervisors table and carries no JSON annotations so
// it can be reused by different presentation layers.
type Supervisor struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains supervisor registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Role     Role   `json:"role" validate:"omitempty,oneof=supervisor admin"`
}

// LoginRequest contains supervisor login credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
