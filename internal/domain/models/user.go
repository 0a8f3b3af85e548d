package models

import "time"

// User is an account record. PassHash and RefreshToken never leave the
// service boundary: both are excluded from JSON.
type User struct {
	ID           string    `json:"_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullname"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage"`
	PassHash     []byte    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewUser holds the fields required to create a user.
type NewUser struct {
	Username   string
	Email      string
	FullName   string
	PassHash   []byte
	Avatar     string
	CoverImage string
}
