// Package workspace stages contract source trees into isolated per-request
// directories and reclaims them afterwards.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// SentinelKey is the staging key used for raw user-submitted code, where no
// blockchain or address is known.
var SentinelKey = Key{Blockchain: "no-bc", Address: "contract"}

// Key identifies the logical owner of a workspace within the staging root.
type Key struct {
	Blockchain string
	Address    string
}

// Workspace is a filesystem namespace scoped to a single request. Every
// request gets a fresh UUID segment under its key, so concurrent requests
// for the same contract never share or clobber each other's files.
type Workspace struct {
	// Root is the absolute path of the request's staging directory.
	Root string

	id  string
	key Key
}

// Path resolves a workspace-relative file path to an absolute one.
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// Manager allocates and reclaims workspaces under a fixed base directory.
type Manager struct {
	base   string
	logger *slog.Logger
}

// NewManager creates a workspace manager rooted at base.
func NewManager(base string, logger *slog.Logger) *Manager {
	return &Manager{base: base, logger: logger}
}

// Stage creates a fresh workspace for key and writes every file of the
// mapping into it, creating intermediate directories as the relative paths
// imply. Contents are written verbatim.
func (m *Manager) Stage(key Key, files map[string]string) (*Workspace, error) {
	for _, seg := range []string{key.Blockchain, key.Address} {
		if err := safeSegment(seg); err != nil {
			return nil, err
		}
	}

	id := uuid.New().String()
	root, err := filepath.Abs(filepath.Join(m.base, key.Blockchain, key.Address, id))
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	ws := &Workspace{Root: root, id: id, key: key}

	for rel, content := range files {
		abs, err := ws.safePath(rel)
		if err != nil {
			m.Teardown(ws)
			return nil, err
		}
		if dir := filepath.Dir(abs); dir != root {
			if err := os.MkdirAll(dir, 0755); err != nil {
				m.Teardown(ws)
				return nil, fmt.Errorf("creating directory for %s: %w", rel, err)
			}
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			m.Teardown(ws)
			return nil, fmt.Errorf("writing %s: %w", rel, err)
		}
	}

	return ws, nil
}

// Teardown removes the workspace subtree. Deletion is best-effort: a failure
// on an individual entry is logged and skipped, never escalated. Empty
// parent directories up to the staging base are pruned so repeated requests
// do not accumulate key directories.
func (m *Manager) Teardown(ws *Workspace) {
	entries, err := os.ReadDir(ws.Root)
	if err == nil {
		for _, entry := range entries {
			path := filepath.Join(ws.Root, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				m.logger.Warn("failed to delete workspace entry", "path", path, "error", err)
			}
		}
	}
	if err := os.Remove(ws.Root); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove workspace root", "path", ws.Root, "error", err)
		return
	}

	// Prune now-empty parents: {base}/{blockchain}/{address}, then {base}/{blockchain}.
	base, err := filepath.Abs(m.base)
	if err != nil {
		return
	}
	for dir := filepath.Dir(ws.Root); dir != base && strings.HasPrefix(dir, base); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break // non-empty or in use by another request
		}
	}
}

// safeSegment rejects key segments that would resolve the workspace root
// outside the staging base. A segment must be a single path element.
func safeSegment(seg string) error {
	if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) {
		return fmt.Errorf("invalid workspace key segment: %q", seg)
	}
	return nil
}

// safePath resolves rel inside the workspace, rejecting absolute paths and
// traversal outside the root.
func (w *Workspace) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty file path in source mapping")
	}
	abs := filepath.Join(w.Root, filepath.FromSlash(rel))
	if abs != w.Root && !strings.HasPrefix(abs, w.Root+string(filepath.Separator)) {
		return "", fmt.Errorf("source path escapes workspace: %s", rel)
	}
	return abs, nil
}
