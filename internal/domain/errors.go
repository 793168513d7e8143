package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrPositionExists      = errors.New("position already open on token")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidPosition     = errors.New("invalid position parameters")
	ErrOrderRejected       = errors.New("order rejected")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrSigningFailed       = errors.New("signing failed")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrStalePrice          = errors.New("price is stale")
	ErrLockHeld            = errors.New("lock already held")
)
