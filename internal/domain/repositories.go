package domain

import (
	"context"
	"time"
)

// SessionRepository defines the Session Manager operations tool handlers rely on.
type SessionRepository interface {
	// GetSession retrieves a copy of a session by its ID.
	GetSession(ctx context.Context, id string) (Session, error)

	// ListSessions returns copies of all live sessions.
	ListSessions(ctx context.Context) ([]Session, error)

	// BeginLoad marks the session as loading an emulator context of the given type.
	BeginLoad(ctx context.Context, id, emulatorType string) error

	// CompleteLoad marks the session ready after a load, or restores it on failure.
	CompleteLoad(ctx context.Context, id string, loadErr error) (Session, error)
}

// AssetStore persists validated assets under {category}/{storedName}.
type AssetStore interface {
	// Store writes the bytes and returns the resulting record.
	Store(ctx context.Context, category, declaredName string, data []byte) (AssetRecord, error)

	// Exists reports whether an asset path ({category}/{storedName}) is present.
	Exists(ctx context.Context, assetPath string) (bool, error)

	// List returns the stored assets of a category, newest first.
	List(ctx context.Context, category string) ([]AssetRecord, error)
}

// SaveStateStore persists slotted save-state records under a session namespace.
type SaveStateStore interface {
	// SaveState atomically writes the record for (sessionID, assetName, slot).
	SaveState(ctx context.Context, sessionID, assetName string, slot int, payload []byte) (SaveStateRecord, error)

	// LoadState reads the record for (sessionID, assetName, slot).
	LoadState(ctx context.Context, sessionID, assetName string, slot int) (SaveStateRecord, error)
}

// AssetCatalog indexes stored assets for listing.
type AssetCatalog interface {
	// AddAsset records a stored asset.
	AddAsset(ctx context.Context, record AssetRecord) error

	// ListAssets returns the assets of a category, newest first.
	ListAssets(ctx context.Context, category string) ([]AssetRecord, error)

	// DeleteAsset removes an asset row.
	DeleteAsset(ctx context.Context, category, storedName string) error
}

// TokenStore keeps issued bearer tokens until they can no longer be verified.
type TokenStore interface {
	// PutToken stores claims, retained for at least ttl.
	PutToken(ctx context.Context, claims TokenClaims, ttl time.Duration) error

	// GetToken returns the claims for a token, or ErrTokenInvalid.
	GetToken(ctx context.Context, token string) (TokenClaims, error)
}
