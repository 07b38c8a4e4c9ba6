package domain

import (
	"context"
	"time"
)

type User struct {
	ID        string    `json:"id"` // Supabase UUID
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CompanyID *string   `json:"company_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

type AuthUsecase interface {
	GetCurrentUser(ctx context.Context, id string) (*User, error)
}
