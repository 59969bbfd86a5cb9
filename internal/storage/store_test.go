package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	layout, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	store, err := OpenStore(layout)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func writeTaskFile(t *testing.T, s *Store, taskID, name string, data []byte) {
	t.Helper()
	dir, err := s.Layout().EnsureTaskDir(taskID)
	if err != nil {
		t.Fatalf("EnsureTaskDir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	l, err := NewLayout(root)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}

	if got := l.TaskDir("abc"); got != filepath.Join(root, "abc") {
		t.Errorf("TaskDir = %q", got)
	}

	dir, err := l.EnsureTaskDir("abc")
	if err != nil {
		t.Fatalf("EnsureTaskDir: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("task dir not created: %v", err)
	}
	// idempotent
	if _, err := l.EnsureTaskDir("abc"); err != nil {
		t.Fatalf("second EnsureTaskDir: %v", err)
	}
	if got := Key("abc", "x.mp4"); got != "abc/x.mp4" {
		t.Errorf("Key = %q", got)
	}
}

func TestFindArtifact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	writeTaskFile(t, s, "t1", "b.mp4", bytes.Repeat([]byte("b"), 2048))
	writeTaskFile(t, s, "t1", "a.mp4", bytes.Repeat([]byte("a"), 4096))
	writeTaskFile(t, s, "t1", "a.f137.mp4.part", []byte("partial"))
	writeTaskFile(t, s, "t1", "cover.webp", []byte("img"))
	writeTaskFile(t, s, "t2", "other.mp4", []byte("other task"))

	a, err := s.FindArtifact(ctx, "t1", "mp4")
	if err != nil {
		t.Fatalf("FindArtifact: %v", err)
	}
	if a.Key != "t1/a.mp4" {
		t.Errorf("Key = %q, want t1/a.mp4", a.Key)
	}
	if a.Size != 4096 {
		t.Errorf("Size = %d, want 4096", a.Size)
	}
	if a.Name() != "a.mp4" || a.Ext() != "mp4" {
		t.Errorf("Name/Ext = %q/%q", a.Name(), a.Ext())
	}

	if _, err := s.FindArtifact(ctx, "t1", ".mp3"); !errors.Is(err, ErrArtifactMissing) {
		t.Errorf("expected ErrArtifactMissing for mp3, got %v", err)
	}
	if _, err := s.FindArtifact(ctx, "missing", "mp4"); !errors.Is(err, ErrArtifactMissing) {
		t.Errorf("expected ErrArtifactMissing for unknown task, got %v", err)
	}
}

func TestReadAllAndOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	payload := []byte("video bytes")
	writeTaskFile(t, s, "t1", "v.mp4", payload)

	got, err := s.ReadAll(ctx, "t1/v.mp4")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadAll = %q", got)
	}

	r, err := s.Open(ctx, "t1/v.mp4")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	streamed, _ := io.ReadAll(r)
	r.Close()
	if !bytes.Equal(streamed, payload) {
		t.Errorf("Open stream = %q", streamed)
	}

	if _, err := s.ReadAll(ctx, "t1/none.mp4"); !errors.Is(err, ErrArtifactMissing) {
		t.Errorf("expected ErrArtifactMissing, got %v", err)
	}
	if _, err := s.Open(ctx, "t1/none.mp4"); !errors.Is(err, ErrArtifactMissing) {
		t.Errorf("expected ErrArtifactMissing from Open, got %v", err)
	}

	if got := s.LocalPath("t1/v.mp4"); got != filepath.Join(s.Layout().Root(), "t1", "v.mp4") {
		t.Errorf("LocalPath = %q", got)
	}
}

func TestMp3DurationMissingFile(t *testing.T) {
	if _, err := Mp3DurationByFrames(filepath.Join(t.TempDir(), "nope.mp3")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
