package emulator

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
)

// BuiltinROM is an asset shipped with the server rather than uploaded.
type BuiltinROM struct {
	Category string
	Name     string
}

// StoredPath is the path clients pass to load_emulator.
func (b BuiltinROM) StoredPath() string {
	return path.Join("builtin", b.Category, b.Name)
}

// ParseBuiltinROMs parses "{category}/{name}" entries.
func ParseBuiltinROMs(entries []string) ([]BuiltinROM, error) {
	out := make([]BuiltinROM, 0, len(entries))
	for _, entry := range entries {
		category, name, ok := strings.Cut(strings.TrimSpace(entry), "/")
		if !ok {
			return nil, errors.Errorf("builtin rom %q: want {category}/{name}", entry)
		}
		if _, known := resource.Lookup(category); !known {
			return nil, errors.Errorf("builtin rom %q: unknown category", entry)
		}
		if err := resource.CheckName(name); err != nil {
			return nil, errors.Wrapf(err, "builtin rom %q", entry)
		}
		out = append(out, BuiltinROM{Category: category, Name: name})
	}
	return out, nil
}
