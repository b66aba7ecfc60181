// Package common defines shared constants and sentinel errors used across
// the Uplink server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Upload-link gate errors. A link that cannot be found is reported
	// distinctly from one that exists but is inactive or expired.
	ErrLinkInactive = errors.New("upload link inactive")
	ErrLinkExpired  = errors.New("upload link expired")

	// ErrNotReady signals an accepted-but-not-ready condition: the caller
	// should retry later (playback requested before proxies exist).
	ErrNotReady = errors.New("not ready")

	// Upstream provider failures (object storage, transcode worker).
	ErrUpstream = errors.New("upstream error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
