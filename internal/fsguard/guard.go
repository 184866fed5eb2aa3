// Package fsguard whitelists the directories and file extensions a bake
// is allowed to write or delete. Every destructive filesystem operation
// in the pipeline consults the guard first; a violation is always fatal,
// never silently ignored. This is the defense against a misconfigured
// output path deleting user data.
package fsguard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ViolationError reports an attempted write or delete outside the
// whitelist.
type ViolationError struct {
	Op   string // "write" or "remove"
	Path string
	Why  string
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("filesystem guard: %s %q refused: %s", e.Op, e.Path, e.Why)
}

// Guard holds the whitelist. The zero value permits nothing.
type Guard struct {
	dirs []string
	exts map[string]bool
}

// DefaultExtensions covers every artifact the pipeline produces.
var DefaultExtensions = []string{
	".data", ".state", ".tmp", ".bobj", ".bbox", ".wwp", ".fpd", ".ffd",
	".json", ".txt", ".db", ".db-wal", ".db-shm",
}

// New creates a guard permitting writes under the given directories with
// the given extensions. Directories are cleaned to absolute form by the
// caller; extensions include the leading dot.
func New(dirs []string, exts []string) *Guard {
	g := &Guard{exts: make(map[string]bool, len(exts))}
	for _, d := range dirs {
		g.dirs = append(g.dirs, filepath.Clean(d))
	}
	for _, e := range exts {
		g.exts[e] = true
	}
	return g
}

// AddDir extends the whitelist with another writable directory.
func (g *Guard) AddDir(dir string) {
	g.dirs = append(g.dirs, filepath.Clean(dir))
}

// CheckWrite returns a ViolationError unless path is inside a
// whitelisted directory and carries a whitelisted extension.
func (g *Guard) CheckWrite(path string) error {
	return g.check("write", path)
}

// CheckRemove returns a ViolationError unless path may be deleted.
// The same whitelist applies: the guard only ever authorizes deleting
// what the pipeline could have written.
func (g *Guard) CheckRemove(path string) error {
	return g.check("remove", path)
}

// CheckRemoveDir authorizes deleting a whole directory tree. Only
// whitelisted directories themselves or their subdirectories qualify;
// the extension rule does not apply to directories.
func (g *Guard) CheckRemoveDir(path string) error {
	if !g.inside(path) {
		return &ViolationError{Op: "remove", Path: path, Why: "directory outside whitelisted roots"}
	}
	return nil
}

func (g *Guard) check(op, path string) error {
	if !g.inside(path) {
		return &ViolationError{Op: op, Path: path, Why: "outside whitelisted directories"}
	}
	ext := filepath.Ext(path)
	if !g.exts[ext] {
		return &ViolationError{Op: op, Path: path, Why: fmt.Sprintf("extension %q not whitelisted", ext)}
	}
	return nil
}

func (g *Guard) inside(path string) bool {
	clean := filepath.Clean(path)
	for _, d := range g.dirs {
		if clean == d || strings.HasPrefix(clean, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
