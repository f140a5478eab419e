package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestFSStoreSaveAndOpen(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	payload := []byte("ID3\x03\x00\x00fake-mp3-bytes")
	art, err := store.Save(context.Background(), payload, "audio/mpeg")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if art.ID == "" {
		t.Fatal("artifact id is empty")
	}
	if art.MIMEType != "audio/mpeg" {
		t.Fatalf("unexpected mime: %s", art.MIMEType)
	}
	if !strings.HasSuffix(art.URI, ".mp3") {
		t.Fatalf("unexpected uri: %s", art.URI)
	}
	if art.Size != int64(len(payload)) {
		t.Fatalf("unexpected size: %d", art.Size)
	}

	reader, got, err := store.Open(context.Background(), art.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()
	if got.ID != art.ID {
		t.Fatalf("id mismatch: %s vs %s", got.ID, art.ID)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatal("payload does not round-trip")
	}
}

func TestFSStoreConcurrentSavesDistinctIDs(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	const workers = 32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			art, err := store.Save(context.Background(), []byte("same payload"), "audio/wav")
			if err != nil {
				t.Errorf("save %d: %v", i, err)
				return
			}
			ids[i] = art.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if seen[id] {
			t.Fatalf("duplicate artifact id: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d distinct artifacts, got %d", workers, len(seen))
	}
}

func TestFSStoreOpenUnknownID(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, err := store.Open(context.Background(), "no-such-artifact"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestFSStoreRejectsTraversalIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	secret := filepath.Join(dir, "..", "secret")
	if err := os.WriteFile(secret, []byte("private"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	for _, id := range []string{"../secret", "..\\secret", "a/b", ""} {
		if _, _, err := store.Open(context.Background(), id); err == nil {
			t.Fatalf("id %q was not rejected", id)
		}
	}
}

func TestFSStoreRecoverAfterRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	wav := []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00")
	art, err := store.Save(context.Background(), wav, "audio/wav")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	// 新实例没有内存索引,必须从目录中找回。
	fresh, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reader, got, err := fresh.Open(context.Background(), art.ID)
	if err != nil {
		t.Fatalf("open after restart: %v", err)
	}
	defer reader.Close()
	if got.MIMEType != "audio/wav" {
		t.Fatalf("recovered mime: %s", got.MIMEType)
	}
}

func TestFSStoreNoPartialFilesVisible(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Save(context.Background(), []byte("payload"), "audio/mpeg"); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}
