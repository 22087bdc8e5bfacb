package curriculum

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const overrideYAML = `
categories:
  - id: solo
    title: Solo
    tasks:
      - {id: s-1, text: Only task}
`

// TestNewWatcher_NoOverride tests that the base catalog is served without an override
func TestNewWatcher_NoOverride(t *testing.T) {
	base, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	w, err := NewWatcher(t.TempDir(), base, nil)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	if w.Catalog() != base {
		t.Error("Catalog() is not the base catalog")
	}
	if w.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}
	if _, ok := w.Guide("define-your-niche"); !ok {
		t.Error("Guide(define-your-niche) not found")
	}
}

// TestNewWatcher_ExistingOverride tests that an override present at startup wins
func TestNewWatcher_ExistingOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(overrideYAML), 0644); err != nil {
		t.Fatalf("Failed to write override: %v", err)
	}
	base, _ := Default()

	w, err := NewWatcher(dir, base, nil)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	if _, ok := w.Task("s-1"); !ok {
		t.Error("Task(s-1) not found")
	}
	if _, ok := w.Task("d1-1"); ok {
		t.Error("Task(d1-1) found in override catalog")
	}
}

// TestWatcher_Reload tests reloading on create, rejection of bad files, and fallback on delete
func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	base, _ := Default()

	w, err := NewWatcher(dir, base, nil)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(overrideYAML), 0644); err != nil {
		t.Fatalf("Failed to write override: %v", err)
	}

	select {
	case c := <-w.Reloads():
		if _, ok := c.Task("s-1"); !ok {
			t.Error("reloaded catalog has no task s-1")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	if err := os.WriteFile(path, []byte("categories: ["), 0644); err != nil {
		t.Fatalf("Failed to write override: %v", err)
	}
	select {
	case <-w.Errors():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for rejection")
	}
	if _, ok := w.Task("s-1"); !ok {
		t.Error("rejected override replaced the catalog")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove override: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for w.Catalog() != base {
		select {
		case <-w.Reloads():
		case <-w.Errors():
		case <-deadline:
			t.Fatal("timeout waiting for fallback to base catalog")
		}
	}
}

// TestWatcher_StartAlreadyRunning tests that a second Start fails
func TestWatcher_StartAlreadyRunning(t *testing.T) {
	base, _ := Default()
	w, err := NewWatcher(t.TempDir(), base, nil)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("second Start() succeeded")
	}
}
