// Package storagepath maps task identities and stored path strings to safe
// locations under the configured storage root. Resolution reads the
// filesystem only to canonicalize symlinks; callers are responsible for
// creating directories and writing files.
package storagepath

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// UploadSubdir is the directory under the storage root holding
	// uploaded task inputs.
	UploadSubdir = "uploads"
	// ResultsSubdir is the directory under the storage root holding
	// produced result files.
	ResultsSubdir = "results"
)

// IsRemote reports whether a stored path is a remote URL rather than a
// local file reference. Remote references are returned to the caller
// untouched and must never be resolved against the filesystem.
func IsRemote(stored string) bool {
	return strings.HasPrefix(stored, "http://") || strings.HasPrefix(stored, "https://")
}

// ResolveLocalResult resolves a task's stored result path against the
// storage root. It returns ok=false for empty values, remote URLs, and any
// path whose canonical form escapes the root (the traversal defense). The
// containment check runs on canonical forms, so a symlink inside the root
// pointing outside it is rejected the same as a ../ escape.
func ResolveLocalResult(root, stored string) (string, bool) {
	if stored == "" || IsRemote(stored) {
		return "", false
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}

	candidate := stored
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(rootAbs, candidate)
	}
	candidate = filepath.Clean(candidate)

	rootCanon := canonicalize(rootAbs)
	candCanon := canonicalize(candidate)

	if !contains(rootCanon, candCanon) {
		return "", false
	}
	return candCanon, true
}

// canonicalize resolves symlinks in path. When path does not exist yet, its
// deepest existing ancestor is resolved and the remaining components are
// joined back lexically, so a result destination that has not been written
// is still checked through any symlinked parent directories.
func canonicalize(path string) string {
	var remainder []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, remainder...)...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path
		}
		remainder = append([]string{filepath.Base(cur)}, remainder...)
		cur = parent
	}
}

// DefaultResultPath returns the conventional output location for a task's
// result: <root>/results/<task_id>.txt.
func DefaultResultPath(root string, taskID uuid.UUID) string {
	return filepath.Join(root, ResultsSubdir, taskID.String()+".txt")
}

// ResultCandidates enumerates the locations where a task's result may live,
// in read order: the stored result path (when it resolves to a contained
// local file) first, then the default convention path. The first existing
// candidate wins; remote URLs produce no local candidate.
func ResultCandidates(root string, taskID uuid.UUID, stored string) []string {
	var candidates []string
	if resolved, ok := ResolveLocalResult(root, stored); ok {
		candidates = append(candidates, resolved)
	}
	def := DefaultResultPath(root, taskID)
	if len(candidates) == 0 || candidates[0] != def {
		candidates = append(candidates, def)
	}
	return candidates
}

// UploadDestination generates a fresh destination for an uploaded file:
// a random filename under <root>/uploads, preserving only the extension of
// the client-supplied name. The rest of the original filename is discarded
// so uploads can neither collide nor smuggle path components.
func UploadDestination(root, originalFilename string) string {
	suffix := filepath.Ext(filepath.Base(originalFilename))
	return filepath.Join(root, UploadSubdir, uuid.NewString()+suffix)
}

// ResolveUpload resolves a stored upload reference to an absolute path.
// Absolute references are used as-is. Relative references may have been
// written under an older storage-root convention, so they are reinterpreted
// under the current root. The fallback order is fixed and must not be
// reordered: path already prefixed with the full root path, then prefixed
// with the root's final directory name, then prefixed with the uploads
// subdirectory, then a bare filename joined under uploads.
func ResolveUpload(root, stored string) string {
	candidate := filepath.Clean(stored)
	if filepath.IsAbs(candidate) {
		return candidate
	}

	rootClean := filepath.Clean(root)
	rootParts := splitPath(rootClean)
	parts := splitPath(candidate)

	if len(rootParts) > 0 && hasPrefix(parts, rootParts) {
		return filepath.Join(append([]string{rootClean}, parts[len(rootParts):]...)...)
	}
	if len(parts) > 0 && parts[0] == filepath.Base(rootClean) {
		return filepath.Join(append([]string{rootClean}, parts[1:]...)...)
	}
	if len(parts) > 0 && parts[0] == UploadSubdir {
		return filepath.Join(append([]string{rootClean}, parts...)...)
	}
	return filepath.Join(rootClean, UploadSubdir, candidate)
}

// contains reports whether candidate is root itself or a descendant of it.
// Both arguments must already be absolute and cleaned.
func contains(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}

// splitPath splits a cleaned path into components. An absolute path keeps
// the separator as its first component so that a relative candidate can
// never prefix-match an absolute root.
func splitPath(p string) []string {
	var parts []string
	if filepath.IsAbs(p) {
		parts = append(parts, string(filepath.Separator))
	}
	for _, part := range strings.Split(p, string(filepath.Separator)) {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}

func hasPrefix(parts, prefix []string) bool {
	if len(parts) < len(prefix) {
		return false
	}
	for i := range prefix {
		if parts[i] != prefix[i] {
			return false
		}
	}
	return true
}
