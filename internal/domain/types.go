// Package domain defines the core entities of the emulator tool server.
package domain

import (
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// SessionStatus is the lifecycle state of a server-side session.
type SessionStatus string

// Session statuses
const (
	SessionLoading SessionStatus = "loading"
	SessionReady   SessionStatus = "ready"
	SessionClosed  SessionStatus = "closed"
)

// Session is the server-side record bound to one authenticated connection.
// The Session Manager owns it; other components only receive copies.
type Session struct {
	ID            string
	Authenticated bool
	Subject       string
	CreatedAt     time.Time
	LastActiveAt  time.Time
	// TokenExpiresAt is the expiry of the bearer token the session was admitted with.
	TokenExpiresAt time.Time
	// EmulatorType is set once the session loads an emulator context.
	EmulatorType string
	Status       SessionStatus
}

// TokenExpired reports whether the session's bearer token has lapsed at now.
func (s Session) TokenExpired(now time.Time) bool {
	return !s.TokenExpiresAt.IsZero() && !now.Before(s.TokenExpiresAt)
}

// Identity is an externally validated caller, such as an operator logged into the web UI.
type Identity struct {
	Subject    string
	Privileged bool
}

// TokenClaims describe an issued bearer token.
type TokenClaims struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token has lapsed at now.
func (c TokenClaims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AssetRecord describes an uploaded asset that passed validation.
type AssetRecord struct {
	Category     string
	StoredName   string
	DeclaredName string
	SizeBytes    int64
	Validated    bool
	Reason       string
	UploadedAt   time.Time
}

// Path returns the asset's key relative to the ROM root: {category}/{storedName}.
func (a AssetRecord) Path() string {
	return path.Join(a.Category, a.StoredName)
}

// Top-level directories of the storage root
const (
	ROMRoot  = "roms"
	SaveRoot = "saves"
)

// Save slot bounds, inclusive
const (
	MinSlot = 1
	MaxSlot = 10
)

// SaveStateSchemaVersion is the current version of persisted save-state records.
const SaveStateSchemaVersion = 1

// SaveStateRecord is one persisted emulator state for a (session, asset, slot) triple.
type SaveStateRecord struct {
	SessionID     string
	AssetName     string
	Slot          int
	Payload       []byte
	SavedAt       time.Time
	SchemaVersion int
}

// Key returns the record's key relative to the saves root.
func (r SaveStateRecord) Key() string {
	return SaveStateKey(r.SessionID, r.AssetName, r.Slot)
}

// StoredPath returns the asset's path relative to the storage root.
func (a AssetRecord) StoredPath() string {
	return path.Join(ROMRoot, a.Path())
}

// SaveStatePath returns the record's path relative to the storage root.
func SaveStatePath(sessionID, assetName string, slot int) string {
	return path.Join(SaveRoot, SaveStateKey(sessionID, assetName, slot))
}

// SaveStateKey builds {sessionId}/{assetName}_slot{N}.record.
func SaveStateKey(sessionID, assetName string, slot int) string {
	return path.Join(sessionID, fmt.Sprintf("%s_slot%d.record", assetName, slot))
}

// ValidateSlot checks that slot lies in [MinSlot, MaxSlot].
func ValidateSlot(slot int) error {
	if slot < MinSlot || slot > MaxSlot {
		return NewSlotRangeError(slot)
	}
	return nil
}

// ToolCall represents a request to execute a tool.
type ToolCall struct {
	Name      string
	Params    json.RawMessage
	RequestID string
	Session   Session
}
