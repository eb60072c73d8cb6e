// Package naming turns untrusted upload names into display names and
// collision-free storage names.
package naming

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"
)

// ErrUnsupportedFormat is returned for files whose extension is not allowed.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// maxDisplayRunes matches the width of tracks.original_filename.
const maxDisplayRunes = 100

// idBytes is the size of the random part of a storage name (128 bits).
const idBytes = 16

var storageNamePattern = regexp.MustCompile(`^[0-9a-f]{32}\.[a-z0-9]+$`)

// Policy holds the extension allow-list.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy builds a Policy from extensions such as "mp3" or ".MP3".
func NewPolicy(exts []string) Policy {
	p := Policy{allowed: make(map[string]struct{}, len(exts))}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			p.allowed[ext] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether ext (lower-case, no dot) is on the allow-list.
func (p Policy) Allowed(ext string) bool {
	_, ok := p.allowed[ext]
	return ok
}

// Extension returns the lower-cased extension of original without the dot.
// Names with no extension or a disallowed one fail with ErrUnsupportedFormat.
func (p Policy) Extension(original string) (string, error) {
	base := baseName(original)
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || idx == len(base)-1 {
		// no dot, dot-file like ".mp3", or trailing dot
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, base)
	}
	ext := strings.ToLower(base[idx+1:])
	if !p.Allowed(ext) {
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}
	return ext, nil
}

// baseName strips any directory part, treating both slash styles as separators.
func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// SanitizeDisplayName makes an uploaded filename safe to store and render:
// directory parts and control characters are removed and the result is
// capped to the column width.
func SanitizeDisplayName(original string) string {
	base := baseName(original)
	var b strings.Builder
	n := 0
	for _, r := range base {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if n == maxDisplayRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == ".." {
		return "upload"
	}
	return out
}

// NewStorageName returns 128 random bits in hex followed by ".ext".
func NewStorageName(ext string) (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate storage name: %w", err)
	}
	return hex.EncodeToString(buf) + "." + ext, nil
}

// IsStorageName reports whether name has the shape NewStorageName produces.
func IsStorageName(name string) bool {
	return storageNamePattern.MatchString(name)
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
}

// ContentType infers the response content type from a filename's extension.
func ContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
