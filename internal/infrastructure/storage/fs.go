// Package storage persists assets, save states and the asset catalogue under a
// single storage root.
package storage

import (
	"os"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
)

// Top-level directories under the storage root
const (
	ROMDir  = domain.ROMRoot
	SaveDir = domain.SaveRoot
)

const (
	dirMode  os.FileMode = 0o755
	fileMode os.FileMode = 0o644
)

// NewFS returns a filesystem rooted at dir.
func NewFS(dir string) (afero.Fs, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage root is empty")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, dirMode); err != nil {
		return nil, errors.Wrap(err, "create storage root")
	}
	return afero.NewBasePathFs(osFs, dir), nil
}

// writeAtomic writes data to a temp file beside name and renames it into place,
// so readers see either the previous content or the new content.
func writeAtomic(fs afero.Fs, name string, data []byte) error {
	dir := path.Dir(name)
	if err := fs.MkdirAll(dir, dirMode); err != nil {
		return errors.Wrap(err, "create directory")
	}

	tmp, err := afero.TempFile(fs, dir, "."+path.Base(name)+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := fs.Chmod(tmpName, fileMode); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	if err := fs.Rename(tmpName, name); err != nil {
		return errors.Wrap(err, "replace file")
	}

	cleanup = false
	return nil
}

// pathLocks hands out one mutex per storage key.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func (p *pathLocks) forPath(key string) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.locks == nil {
		p.locks = map[string]*sync.RWMutex{}
	}
	if mu, ok := p.locks[key]; ok {
		return mu
	}
	mu := &sync.RWMutex{}
	p.locks[key] = mu
	return mu
}
