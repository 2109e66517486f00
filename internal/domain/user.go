package domain

import "github.com/google/uuid"

// User is the subset of an account the ingestion pipeline needs.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	IsActive bool      `json:"isActive"`
}
