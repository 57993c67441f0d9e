package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
)

// Catalog indexes stored assets in a local SQLite database.
type Catalog struct {
	db *sql.DB
}

var _ domain.AssetCatalog = (*Catalog)(nil)

// OpenCatalog opens or creates the catalogue at path.
func OpenCatalog(path string) (*Catalog, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing catalog path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, errors.Wrap(err, "create catalog directory")
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Single-process local DB.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// AddAsset records a stored asset, replacing any row with the same key.
func (c *Catalog) AddAsset(ctx context.Context, record domain.AssetRecord) error {
	if c == nil || c.db == nil {
		return errors.New("catalog not initialized")
	}

	_, err := c.db.ExecContext(ctx, `
INSERT INTO assets(category, stored_name, declared_name, size_bytes, uploaded_at_unix_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(category, stored_name) DO UPDATE SET
  declared_name = excluded.declared_name,
  size_bytes = excluded.size_bytes,
  uploaded_at_unix_ms = excluded.uploaded_at_unix_ms
`, record.Category, record.StoredName, record.DeclaredName, record.SizeBytes, record.UploadedAt.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "insert asset")
	}
	return nil
}

// ListAssets returns the assets of a category, newest first.
func (c *Catalog) ListAssets(ctx context.Context, category string) ([]domain.AssetRecord, error) {
	if c == nil || c.db == nil {
		return nil, errors.New("catalog not initialized")
	}

	rows, err := c.db.QueryContext(ctx, `
SELECT category, stored_name, declared_name, size_bytes, uploaded_at_unix_ms
FROM assets
WHERE category = ?
ORDER BY uploaded_at_unix_ms DESC, stored_name ASC
`, category)
	if err != nil {
		return nil, errors.Wrap(err, "query assets")
	}
	defer rows.Close()

	var out []domain.AssetRecord
	for rows.Next() {
		var r domain.AssetRecord
		var uploadedAt int64
		if err := rows.Scan(&r.Category, &r.StoredName, &r.DeclaredName, &r.SizeBytes, &uploadedAt); err != nil {
			return nil, errors.Wrap(err, "scan asset")
		}
		r.UploadedAt = time.UnixMilli(uploadedAt).UTC()
		r.Validated = true
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteAsset removes an asset row.
func (c *Catalog) DeleteAsset(ctx context.Context, category, storedName string) error {
	if c == nil || c.db == nil {
		return errors.New("catalog not initialized")
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM assets WHERE category = ? AND stored_name = ?`, category, storedName)
	return errors.Wrap(err, "delete asset")
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return errors.Wrap(err, "pragma journal_mode")
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return errors.Wrap(err, "pragma busy_timeout")
	}
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS assets (
  category TEXT NOT NULL,
  stored_name TEXT NOT NULL,
  declared_name TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  uploaded_at_unix_ms INTEGER NOT NULL,
  PRIMARY KEY (category, stored_name)
);
CREATE INDEX IF NOT EXISTS idx_assets_uploaded ON assets(category, uploaded_at_unix_ms);
`)
	if err != nil {
		return errors.Wrap(err, "create assets table")
	}
	return nil
}
