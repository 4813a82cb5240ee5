package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("resource expired")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBackend      = errors.New("backend error")
	ErrEmptySlip    = errors.New("bet slip is empty")
	ErrInvalidStake = errors.New("invalid stake")
	ErrLockedPrice  = errors.New("price is locked")
	ErrInvalidPick  = errors.New("invalid selection")
	ErrBusy         = errors.New("validation already in progress")
	ErrNoVerdict    = errors.New("no pending verdict")
	ErrSlipChanged  = errors.New("slip changed while the request was in flight")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
