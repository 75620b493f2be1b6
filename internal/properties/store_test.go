package properties

import (
	"path/filepath"
	"testing"

	"github.com/gospdy/spdytun/internal/spdysession"
)

func TestMemStoreSetGetClear(t *testing.T) {
	s := NewMemStore()
	if _, ok := s.GetSettings("example.com:443"); ok {
		t.Fatal("GetSettings on an empty store should report not-found")
	}

	s.SetSetting("example.com:443", spdysession.SettingInitialWindowSize, 0, 65536)
	got, ok := s.GetSettings("example.com:443")
	if !ok || len(got) != 1 || got[0].Value != 65536 {
		t.Fatalf("GetSettings after SetSetting = %+v, %v", got, ok)
	}

	// A second SetSetting for the same ID updates in place, not appends.
	s.SetSetting("example.com:443", spdysession.SettingInitialWindowSize, 0, 131072)
	got, _ = s.GetSettings("example.com:443")
	if len(got) != 1 || got[0].Value != 131072 {
		t.Fatalf("SetSetting should update existing entries in place, got %+v", got)
	}

	s.ClearSettings("example.com:443")
	if _, ok := s.GetSettings("example.com:443"); ok {
		t.Fatal("ClearSettings should remove the host's entries")
	}
}

func TestFileStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "properties.json")

	fs1, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore (fresh): %v", err)
	}
	fs1.SetSetting("example.com:443", spdysession.SettingMaxConcurrentStreams, 0, 100)

	fs2, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore (reload): %v", err)
	}
	got, ok := fs2.GetSettings("example.com:443")
	if !ok || len(got) != 1 || got[0].Value != 100 {
		t.Fatalf("reloaded store = %+v, %v, want the persisted setting", got, ok)
	}
}

func TestOpenFileStoreMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	fs, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore on a missing file should not error: %v", err)
	}
	if _, ok := fs.GetSettings("anything:443"); ok {
		t.Fatal("a fresh store backed by a missing file should start empty")
	}
}
