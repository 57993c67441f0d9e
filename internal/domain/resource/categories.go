package resource

import (
	"bytes"
	"encoding/base64"
	"sort"
)

// Size units
const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
)

// Signature is a structural check: one of Magic must appear at Offset.
// A zero Signature accepts any content.
type Signature struct {
	Offset int
	Magic  [][]byte
}

// Match reports whether data carries the signature.
func (s Signature) Match(data []byte) bool {
	if len(s.Magic) == 0 {
		return true
	}
	for _, magic := range s.Magic {
		end := s.Offset + len(magic)
		if end <= len(data) && bytes.Equal(data[s.Offset:end], magic) {
			return true
		}
	}
	return false
}

// Rule holds the upload constraints of one asset category.
type Rule struct {
	Category    string
	Description string
	MaxSize     int64
	Extensions  []string
	Signature   Signature
}

// AllowsExtension reports whether ext (lowercase, with dot) is allowed.
func (r Rule) AllowsExtension(ext string) bool {
	for _, allowed := range r.Extensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

var rules = map[string]Rule{
	"cart-8bit": {
		Description: "8-bit cartridge (iNES)",
		MaxSize:     512 * KiB,
		Extensions:  []string{".rom"},
		Signature:   Signature{Offset: 0, Magic: [][]byte{{0x4E, 0x45, 0x53, 0x1A}}},
	},
	"cart-16bit": {
		Description: "16-bit cartridge",
		MaxSize:     8 * MiB,
		Extensions:  []string{".sfc", ".smc"},
	},
	"handheld": {
		Description: "handheld cartridge",
		MaxSize:     8 * MiB,
		Extensions:  []string{".gb", ".gbc"},
		Signature:   Signature{Offset: 0x104, Magic: [][]byte{{0xCE, 0xED, 0x66, 0x66}}},
	},
	"handheld-32bit": {
		Description: "32-bit handheld cartridge",
		MaxSize:     32 * MiB,
		Extensions:  []string{".gba"},
		Signature:   Signature{Offset: 0xB2, Magic: [][]byte{{0x96}}},
	},
	"cart-megadrive": {
		Description: "16-bit cartridge with SEGA header",
		MaxSize:     8 * MiB,
		Extensions:  []string{".md", ".gen"},
		Signature:   Signature{Offset: 0x100, Magic: [][]byte{[]byte("SEGA")}},
	},
	"cart-64bit": {
		Description: "64-bit cartridge in any byte order",
		MaxSize:     64 * MiB,
		Extensions:  []string{".z64", ".n64", ".v64"},
		Signature: Signature{Offset: 0, Magic: [][]byte{
			{0x80, 0x37, 0x12, 0x40},
			{0x37, 0x80, 0x40, 0x12},
			{0x40, 0x12, 0x37, 0x80},
		}},
	},
	"arcade": {
		Description: "arcade romset archive",
		MaxSize:     256 * MiB,
		Extensions:  []string{".zip"},
		Signature:   Signature{Offset: 0, Magic: [][]byte{{0x50, 0x4B, 0x03, 0x04}}},
	},
	"disk-image": {
		Description: "optical disc image (ISO 9660)",
		MaxSize:     700 * MiB,
		Extensions:  []string{".iso", ".img"},
		Signature:   Signature{Offset: 0x8001, Magic: [][]byte{[]byte("CD001")}},
	},
}

// Lookup returns the rule for a category.
func Lookup(category string) (Rule, bool) {
	rule, ok := rules[category]
	if ok {
		rule.Category = category
	}
	return rule, ok
}

// Categories returns every known category name, sorted.
func Categories() []string {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rules returns every rule, sorted by category.
func Rules() []Rule {
	out := make([]Rule, 0, len(rules))
	for _, name := range Categories() {
		rule, _ := Lookup(name)
		out = append(out, rule)
	}
	return out
}

// FrameOverhead covers the JSON envelope around an inline upload: the frame
// fields, the parameter names and the file name.
const FrameOverhead int64 = 64 * KiB

// MaxUploadFrame is the size of the largest frame an accepted upload can
// produce once its content is base64 encoded.
func MaxUploadFrame() int64 {
	var largest int64
	for _, rule := range rules {
		if rule.MaxSize > largest {
			largest = rule.MaxSize
		}
	}
	return int64(base64.StdEncoding.EncodedLen(int(largest))) + FrameOverhead
}
