// Package models defines the persistent entities of the Uplink server:
// upload links, file records with their storage-tier sub-objects, playback
// proxies, and multipart upload sessions.
package models

import "time"

// UploadLink is the persisted record behind a public upload token. It is the
// sole authorization gate on the public upload surface: every upload-path
// request is validated against it before any storage credential is issued.
type UploadLink struct {
	LinkID      string     `json:"linkId"`
	ClientName  string     `json:"clientName"`
	ProjectName string     `json:"projectName"`
	IsActive    bool       `json:"isActive"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	UploadCount int64      `json:"uploadCount"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Expired reports whether the link has an expiry in the past at the given
// instant. A nil ExpiresAt never expires.
func (l *UploadLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}
