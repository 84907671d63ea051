package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Prefix names every job directory created by a Manager.
const Prefix = "deploy-"

// Manager owns job working directories under a common root.
type Manager struct {
	root string
}

// New ensures the workspace root exists. An empty root means the
// system temp directory.
func New(root string) (*Manager, error) {
	if root == "" {
		root = os.TempDir()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs}, nil
}

func (m *Manager) Root() string {
	return m.root
}

// Create makes a fresh, uniquely named directory for one job.
func (m *Manager) Create() (string, error) {
	dir, err := os.MkdirTemp(m.root, Prefix+"*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Remove deletes a job directory. Paths outside the root are refused.
func (m *Manager) Remove(path string) error {
	if path == "" {
		return nil
	}
	if !m.owns(path) {
		return fmt.Errorf("refusing to remove %s: outside workspace root", path)
	}
	return os.RemoveAll(path)
}

// Sweep removes job directories last modified before now-maxAge and
// returns how many were removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("read workspace root: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) owns(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return false
	}
	return !strings.Contains(rel, string(filepath.Separator))
}
