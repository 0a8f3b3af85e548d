package storage

import "errors"

var (
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrTokenMismatch is returned by a conditional refresh token swap when
	// the stored token is no longer the expected one.
	ErrTokenMismatch = errors.New("stored refresh token mismatch")
)
