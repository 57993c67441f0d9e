package resource

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

// MaxNameLength bounds declared file names and storage key components.
const MaxNameLength = 255

// CheckName rejects names that are unsafe as a single storage key component.
func CheckName(name string) error {
	switch {
	case name == "":
		return errors.New("name is empty")
	case len(name) > MaxNameLength:
		return errors.Errorf("name exceeds %d bytes", MaxNameLength)
	case name == "." || strings.Contains(name, ".."):
		return errors.New("name contains a relative path element")
	case strings.ContainsAny(name, `/\`):
		return errors.New("name contains a path separator")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errors.New("name contains a control character")
		}
	}
	return nil
}

// Extension returns the lowercase extension of name, including the dot.
func Extension(name string) string {
	return strings.ToLower(path.Ext(name))
}

// StoredName derives the on-disk name of an accepted upload from its content, the
// upload time and its category, keeping the declared extension.
func StoredName(category, declaredName string, data []byte, at time.Time) string {
	h := sha256.New()
	h.Write(data)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))
	h.Write(ts[:])
	h.Write([]byte(category))
	return hex.EncodeToString(h.Sum(nil))[:32] + Extension(declaredName)
}
