// Package vaultpath maps capture dates, notes and entity names to canonical
// vault-relative paths. All functions are pure.
package vaultpath

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/starford/scanvault/internal/apperr"
)

// Top-level folders of the vault taxonomy.
const (
	FolderInbox     = "00_inbox"
	FolderDaily     = "01_daily"
	FolderProjects  = "10_projects"
	FolderAreas     = "20_areas"
	FolderResources = "30_resources"
	FolderArchive   = "90_archive"
)

// Folders is the fixed top-level taxonomy created on bootstrap.
var Folders = []string{
	FolderInbox,
	FolderDaily,
	FolderProjects,
	FolderAreas,
	FolderResources,
	FolderArchive,
}

const (
	noteExt     = ".md"
	sidecarExt  = ".meta.json"
	dateLayout  = "2006-01-02"
	maxSlugSize = 120
)

// IsFolder reports whether name is part of the taxonomy.
func IsFolder(name string) bool {
	for _, f := range Folders {
		if f == name {
			return true
		}
	}
	return false
}

// DailyNotePath returns 01_daily/{yyyy-MM-dd}.md for the UTC calendar date
// of capturedAt.
func DailyNotePath(capturedAt time.Time) (string, error) {
	if capturedAt.IsZero() {
		return "", fmt.Errorf("vaultpath: %w: zero timestamp", apperr.ErrCaptureTime)
	}
	return path.Join(FolderDaily, DateStamp(capturedAt)+noteExt), nil
}

// DateStamp formats the UTC calendar date of t as yyyy-MM-dd.
func DateStamp(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// MetadataPath returns the sidecar path for a note: the same stem with a
// .meta.json suffix.
func MetadataPath(notePath string) string {
	return strings.TrimSuffix(notePath, noteExt) + sidecarExt
}

// IsMetadataPath reports whether p follows the sidecar convention.
func IsMetadataPath(p string) bool {
	return strings.HasSuffix(p, sidecarExt)
}

// EntityPath returns 10_projects/{slug}.md for a link name.
func EntityPath(linkName string) (string, error) {
	slug := Slugify(linkName)
	if slug == "" {
		return "", fmt.Errorf("vaultpath: %w: empty entity name %q", apperr.ErrInvalidOperation, linkName)
	}
	return path.Join(FolderProjects, slug+noteExt), nil
}

// Slugify turns a link name into a filename-safe stem. Whitespace runs
// become a single '-', case is preserved, characters unsafe in filenames are
// dropped, and leading dots or dashes are trimmed.
func Slugify(name string) string {
	var b strings.Builder
	pendingDash := false

	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r):
			pendingDash = true
			continue
		case unsafeRune(r):
			continue
		}
		if pendingDash && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingDash = false
		b.WriteRune(r)
	}

	slug := strings.Trim(b.String(), ".-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if len(slug) > maxSlugSize {
		slug = strings.TrimRight(truncateRunes(slug, maxSlugSize), ".-")
	}
	return slug
}

func unsafeRune(r rune) bool {
	if unicode.IsControl(r) {
		return true
	}
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '#', '[', ']', '^':
		return true
	}
	return false
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut]
}

// Normalize cleans a vault-relative path and rejects anything that is
// absolute, empty or escapes the vault root. The result uses forward
// slashes and has no leading "./".
func Normalize(p string) (string, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if raw == "" {
		return "", fmt.Errorf("vaultpath: %w: empty path", apperr.ErrInvalidOperation)
	}
	if strings.HasPrefix(raw, "/") || hasDriveLetter(raw) {
		return "", fmt.Errorf("vaultpath: %w: absolute path %q", apperr.ErrOutsideVault, p)
	}
	cleaned := path.Clean(raw)
	if cleaned == "." {
		return "", fmt.Errorf("vaultpath: %w: path %q names the vault root", apperr.ErrInvalidOperation, p)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("vaultpath: %w: %q", apperr.ErrOutsideVault, p)
	}
	return cleaned, nil
}

func hasDriveLetter(p string) bool {
	return len(p) >= 2 && p[1] == ':' && ((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}

// WikiTarget returns the wikilink target for a note path (the path without
// its .md extension).
func WikiTarget(notePath string) string {
	return strings.TrimSuffix(notePath, noteExt)
}
