package storage

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

// AssetStore writes accepted uploads to roms/{category}/{storedName}.
type AssetStore struct {
	fs      afero.Fs
	catalog domain.AssetCatalog
	logger  *logging.Logger
	now     func() time.Time
	locks   pathLocks
}

var _ domain.AssetStore = (*AssetStore)(nil)

// AssetStoreOption configures an AssetStore.
type AssetStoreOption func(*AssetStore)

// WithCatalog indexes every stored asset.
func WithCatalog(catalog domain.AssetCatalog) AssetStoreOption {
	return func(s *AssetStore) {
		s.catalog = catalog
	}
}

// WithAssetLogger sets the logger.
func WithAssetLogger(logger *logging.Logger) AssetStoreOption {
	return func(s *AssetStore) {
		s.logger = logger
	}
}

// WithAssetClock overrides the clock used for naming and timestamps.
func WithAssetClock(now func() time.Time) AssetStoreOption {
	return func(s *AssetStore) {
		s.now = now
	}
}

// NewAssetStore creates an asset store on fs.
func NewAssetStore(fs afero.Fs, opts ...AssetStoreOption) *AssetStore {
	s := &AssetStore{
		fs:     fs,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store persists bytes that already passed validation and returns their record.
// If indexing fails the written file is removed again.
func (s *AssetStore) Store(ctx context.Context, category, declaredName string, data []byte) (domain.AssetRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.AssetRecord{}, err
	}
	if _, ok := resource.Lookup(category); !ok {
		return domain.AssetRecord{}, mcperrors.NewValidationError("category", "unknown category "+category)
	}
	if err := resource.CheckName(declaredName); err != nil {
		return domain.AssetRecord{}, mcperrors.NewValidationError("fileName", err.Error())
	}

	now := s.now().UTC()
	record := domain.AssetRecord{
		Category:     category,
		StoredName:   resource.StoredName(category, declaredName, data, now),
		DeclaredName: declaredName,
		SizeBytes:    int64(len(data)),
		Validated:    true,
		UploadedAt:   now,
	}
	key := record.StoredPath()

	mu := s.locks.forPath(key)
	mu.Lock()
	defer mu.Unlock()

	if err := writeAtomic(s.fs, key, data); err != nil {
		s.logger.Error("asset write failed", logging.Fields{"category": category, "error": err})
		return domain.AssetRecord{}, mcperrors.NewIOError("store asset", err)
	}

	if s.catalog != nil {
		if err := s.catalog.AddAsset(ctx, record); err != nil {
			_ = s.fs.Remove(key)
			s.logger.Error("asset index failed", logging.Fields{"category": category, "error": err})
			return domain.AssetRecord{}, mcperrors.NewIOError("index asset", err)
		}
	}

	s.logger.Info("asset stored", logging.Fields{
		"category":    category,
		"stored_name": record.StoredName,
		"size":        record.SizeBytes,
	})
	return record, nil
}

// Exists reports whether an asset path relative to the ROM root is present.
// A leading "roms/" prefix is accepted.
func (s *AssetStore) Exists(ctx context.Context, assetPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key, err := assetKey(assetPath)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, mcperrors.NewIOError("stat asset", err)
	}
	return !info.IsDir(), nil
}

// List returns the stored assets of a category. The catalogue is used when
// configured, otherwise the category directory is read. Catalogue rows whose
// file has gone are dropped from the catalogue.
func (s *AssetStore) List(ctx context.Context, category string) ([]domain.AssetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.catalog != nil {
		records, err := s.catalog.ListAssets(ctx, category)
		if err != nil {
			return nil, mcperrors.NewIOError("list assets", err)
		}
		return s.pruneMissing(ctx, records), nil
	}

	infos, err := afero.ReadDir(s.fs, path.Join(ROMDir, category))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, mcperrors.NewIOError("list assets", err)
	}

	var out []domain.AssetRecord
	for _, info := range infos {
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		out = append(out, domain.AssetRecord{
			Category:     category,
			StoredName:   info.Name(),
			DeclaredName: info.Name(),
			SizeBytes:    info.Size(),
			Validated:    true,
			UploadedAt:   info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (s *AssetStore) pruneMissing(ctx context.Context, records []domain.AssetRecord) []domain.AssetRecord {
	out := records[:0]
	for _, r := range records {
		if _, err := s.fs.Stat(r.StoredPath()); !os.IsNotExist(err) {
			out = append(out, r)
			continue
		}
		fields := logging.Fields{"category": r.Category, "stored_name": r.StoredName}
		if err := s.catalog.DeleteAsset(ctx, r.Category, r.StoredName); err != nil {
			fields["error"] = err
			s.logger.Warn("stale catalogue row not removed", fields)
			continue
		}
		s.logger.Warn("removed catalogue row for missing asset", fields)
	}
	return out
}

func assetKey(assetPath string) (string, error) {
	p := strings.TrimPrefix(strings.TrimSpace(assetPath), ROMDir+"/")
	parts := strings.Split(p, "/")
	if len(parts) != 2 {
		return "", mcperrors.NewValidationError("assetPath", "must be {category}/{storedName}")
	}
	for _, part := range parts {
		if err := resource.CheckName(part); err != nil {
			return "", mcperrors.NewValidationError("assetPath", err.Error())
		}
	}
	return path.Join(ROMDir, parts[0], parts[1]), nil
}
