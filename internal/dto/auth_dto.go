package dto

import "time"

// SignUpRequest registers a new principal.
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"required,oneof=teacher student"`
}

// LoginRequest signs an existing principal in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// SessionResponse is returned after a successful sign-up or sign-in.
type SessionResponse struct {
	Token       string        `json:"token"`
	ExpiresAt   time.Time     `json:"expires_at"`
	SessionID   string        `json:"session_id"`
	PrincipalID string        `json:"principal_id"`
	View        DashboardView `json:"view"`
}
