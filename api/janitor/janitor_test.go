package janitor

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"quickdeploy/api/workspace"
)

func TestRunOnceRemovesStaleWorkspaces(t *testing.T) {
	root := t.TempDir()
	ws, err := workspace.New(root)
	if err != nil {
		t.Fatal(err)
	}
	stale, _ := ws.Create()
	fresh, _ := ws.Create()
	old := time.Now().Add(-3 * time.Hour)
	os.Chtimes(stale, old, old)
	other := filepath.Join(root, "unrelated")
	os.Mkdir(other, 0o755)
	os.Chtimes(other, old, old)

	j, err := New(ws, "@every 1h", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	j.RunOnce()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale workspace survived")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh workspace removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("non-workspace directory removed")
	}
	if j.Removed() != 1 {
		t.Errorf("Removed() = %d, want 1", j.Removed())
	}
}

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(time.Duration) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestScheduledSweep(t *testing.T) {
	s := &countingSweeper{}
	j, err := New(s, "@every 1s", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for s.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRunOnceSurvivesErrors(t *testing.T) {
	s := &countingSweeper{err: errors.New("permission denied")}
	j, _ := New(s, "@every 1h", time.Hour, nil)
	j.RunOnce()
	j.RunOnce()
	if s.calls.Load() != 2 {
		t.Errorf("calls = %d", s.calls.Load())
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(&countingSweeper{}, "every tuesday", time.Hour, nil); err == nil {
		t.Error("bad schedule accepted")
	}
	if _, err := New(&countingSweeper{}, "@every 1h", 0, nil); err == nil {
		t.Error("zero max age accepted")
	}
}
