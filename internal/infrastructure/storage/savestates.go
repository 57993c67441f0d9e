package storage

import (
	"context"
	"encoding/base64"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

// saveStateSchema is the on-disk form of a save-state record.
type saveStateSchema struct {
	SchemaVersion int       `toml:"schema_version"`
	SessionID     string    `toml:"session_id"`
	AssetName     string    `toml:"asset_name"`
	Slot          int       `toml:"slot"`
	SavedAt       time.Time `toml:"saved_at"`
	Payload       string    `toml:"payload"`
}

func (s saveStateSchema) validateVersion() error {
	if s.SchemaVersion < 1 || s.SchemaVersion > domain.SaveStateSchemaVersion {
		return errors.Errorf("unsupported save state schema version %d", s.SchemaVersion)
	}
	return nil
}

// SaveStateStore persists save-state records as TOML under saves/{sessionId}/.
type SaveStateStore struct {
	fs     afero.Fs
	logger *logging.Logger
	now    func() time.Time
	locks  pathLocks
}

var _ domain.SaveStateStore = (*SaveStateStore)(nil)

// NewSaveStateStore creates a save-state store on fs.
func NewSaveStateStore(fs afero.Fs, logger *logging.Logger) *SaveStateStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SaveStateStore{fs: fs, logger: logger, now: time.Now}
}

// SaveState atomically replaces the record for (sessionID, assetName, slot).
func (s *SaveStateStore) SaveState(ctx context.Context, sessionID, assetName string, slot int, payload []byte) (domain.SaveStateRecord, error) {
	key, err := saveKey(sessionID, assetName, slot)
	if err != nil {
		return domain.SaveStateRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.SaveStateRecord{}, err
	}

	record := domain.SaveStateRecord{
		SessionID:     sessionID,
		AssetName:     assetName,
		Slot:          slot,
		Payload:       payload,
		SavedAt:       s.now().UTC().Truncate(time.Millisecond),
		SchemaVersion: domain.SaveStateSchemaVersion,
	}
	data, err := toml.Marshal(toSaveSchema(record))
	if err != nil {
		return domain.SaveStateRecord{}, mcperrors.NewIOError("encode save state", err)
	}

	mu := s.locks.forPath(key)
	mu.Lock()
	defer mu.Unlock()

	if err := writeAtomic(s.fs, key, data); err != nil {
		s.logger.Error("save state write failed", logging.Fields{"session_id": sessionID, "slot": slot, "error": err})
		return domain.SaveStateRecord{}, mcperrors.NewIOError("write save state", err)
	}
	return record, nil
}

// LoadState reads the record for (sessionID, assetName, slot).
func (s *SaveStateStore) LoadState(ctx context.Context, sessionID, assetName string, slot int) (domain.SaveStateRecord, error) {
	key, err := saveKey(sessionID, assetName, slot)
	if err != nil {
		return domain.SaveStateRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.SaveStateRecord{}, err
	}

	mu := s.locks.forPath(key)
	mu.RLock()
	data, err := afero.ReadFile(s.fs, key)
	mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return domain.SaveStateRecord{}, domain.NewSaveStateNotFoundError(sessionID, assetName, slot)
		}
		return domain.SaveStateRecord{}, mcperrors.NewIOError("read save state", err)
	}

	var file saveStateSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return domain.SaveStateRecord{}, mcperrors.NewIOError("decode save state", err)
	}
	if err := file.validateVersion(); err != nil {
		return domain.SaveStateRecord{}, mcperrors.NewIOError("decode save state", err)
	}
	return fromSaveSchema(file)
}

// Path returns the storage key of a record relative to the storage root.
func (s *SaveStateStore) Path(sessionID, assetName string, slot int) string {
	return domain.SaveStatePath(sessionID, assetName, slot)
}

func saveKey(sessionID, assetName string, slot int) (string, error) {
	if err := domain.ValidateSlot(slot); err != nil {
		return "", err
	}
	if err := resource.CheckName(sessionID); err != nil {
		return "", mcperrors.NewValidationError("sessionId", err.Error())
	}
	if err := resource.CheckName(assetName); err != nil {
		return "", mcperrors.NewValidationError("assetName", err.Error())
	}
	return domain.SaveStatePath(sessionID, assetName, slot), nil
}

func toSaveSchema(r domain.SaveStateRecord) saveStateSchema {
	return saveStateSchema{
		SchemaVersion: r.SchemaVersion,
		SessionID:     r.SessionID,
		AssetName:     r.AssetName,
		Slot:          r.Slot,
		SavedAt:       r.SavedAt,
		Payload:       base64.StdEncoding.EncodeToString(r.Payload),
	}
}

func fromSaveSchema(s saveStateSchema) (domain.SaveStateRecord, error) {
	payload, err := base64.StdEncoding.DecodeString(s.Payload)
	if err != nil {
		return domain.SaveStateRecord{}, mcperrors.NewIOError("decode save state payload", err)
	}
	return domain.SaveStateRecord{
		SessionID:     s.SessionID,
		AssetName:     s.AssetName,
		Slot:          s.Slot,
		Payload:       payload,
		SavedAt:       s.SavedAt.UTC(),
		SchemaVersion: s.SchemaVersion,
	}, nil
}
