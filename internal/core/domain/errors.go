package domain

import "errors"

// Storage-level sentinels. Session-level failures use pkg/errors codes instead.
var (
	ErrExportNotFound  = errors.New("compliance export not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSinkUnavailable = errors.New("compliance sink unavailable")
)
