package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
)

func TestFileStorePutAndList(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "http://localhost:7002/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := store.Put(ctx, "videos/clip.mp4", []byte("data"), "video/mp4"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	objects, err := store.List(ctx, "videos")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 1 || objects[0].Name != "clip.mp4" {
		t.Fatalf("unexpected listing: %#v", objects)
	}
}

func TestFileStorePublicURL(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:7002/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	got := store.PublicURL("images/pic.png")
	want := "http://localhost:7002/static/images/pic.png"
	if got != want {
		t.Fatalf("PublicURL = %q, want %q", got, want)
	}
}

func TestFileStoreRemoveMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Remove(context.Background(), "videos/ghost.mp4"); err != domain.ErrNotFound {
		t.Fatalf("Remove missing = %v, want ErrNotFound", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileStore(base, "http://localhost")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Put(context.Background(), "../escape.txt", []byte("x"), "text/plain"); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(base), "escape.txt")); statErr == nil {
		t.Fatal("file escaped the storage root")
	}
}

func TestFileStoreListMissingPrefixIsEmpty(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	objects, err := store.List(context.Background(), "images")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 0 {
		t.Fatalf("expected empty listing, got %#v", objects)
	}
}
