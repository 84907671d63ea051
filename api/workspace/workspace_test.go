package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateUnique(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("Create returned the same dir twice: %s", a)
	}
	for _, d := range []string{a, b} {
		if !strings.HasPrefix(filepath.Base(d), Prefix) {
			t.Errorf("%s lacks prefix %q", d, Prefix)
		}
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("%s not a directory: %v", d, err)
		}
	}
}

func TestRemove(t *testing.T) {
	m, _ := New(t.TempDir())
	dir, _ := m.Create()
	os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755)
	os.WriteFile(filepath.Join(dir, "a", "b", "f.txt"), []byte("x"), 0o644)

	if err := m.Remove(dir); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("dir still exists: %v", err)
	}
	if err := m.Remove(""); err != nil {
		t.Errorf("Remove(\"\") = %v", err)
	}
}

func TestRemoveRefusesOutsideRoot(t *testing.T) {
	m, _ := New(t.TempDir())
	other := t.TempDir()

	for _, p := range []string{other, m.Root(), filepath.Join(m.Root(), "..")} {
		if err := m.Remove(p); err == nil {
			t.Errorf("Remove(%s) succeeded, want refusal", p)
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("outside dir was touched: %v", err)
	}
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	m, _ := New(root)

	stale, _ := m.Create()
	fresh, _ := m.Create()
	unrelated := filepath.Join(root, "keep-me")
	os.Mkdir(unrelated, 0o755)

	old := time.Now().Add(-2 * time.Hour)
	os.Chtimes(stale, old, old)
	os.Chtimes(unrelated, old, old)

	n, err := m.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale workspace survived")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh workspace removed")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("non-workspace dir removed")
	}
}
