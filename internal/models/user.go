package models

import (
	"time"
)

type User struct {
	ID           int        `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Profile is the public-facing part of a user, written only through upserts
type Profile struct {
	UserID      int       `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarKey   *string   `json:"-"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RegisterRequest is the request body for user registration
type RegisterRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"display_name,omitempty"`
}

// LoginRequest is the request body for user login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned after successful login/register
type AuthResponse struct {
	Token   string   `json:"token"`
	User    *User    `json:"user"`
	Profile *Profile `json:"profile,omitempty"`
}

// UpsertProfileRequest is the request body for creating or updating a profile
type UpsertProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// ChangePasswordRequest is the request body for changing the caller's password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
