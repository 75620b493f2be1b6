// Package properties implements spdysession.PropertiesStore: a place to
// remember per-host SETTINGS values across connections, keyed by
// host:port and written by the session core rather than read once at
// startup.
package properties

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/gospdy/spdytun/internal/spdysession"
)

// settingEntry is the JSON-serializable form of one remembered setting.
type settingEntry struct {
	ID    spdysession.SettingID    `json:"id"`
	Flag  spdysession.ControlFlags `json:"flag"`
	Value uint32                   `json:"value"`
}

// MemStore is a process-lifetime, mutex-guarded PropertiesStore.
type MemStore struct {
	mu    sync.RWMutex
	byKey map[string][]spdysession.Setting
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{byKey: make(map[string][]spdysession.Setting)}
}

func (m *MemStore) GetSettings(hostPort string) ([]spdysession.Setting, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byKey[hostPort]
	return s, ok
}

func (m *MemStore) SetSetting(hostPort string, id spdysession.SettingID, flag spdysession.ControlFlags, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	settings := m.byKey[hostPort]
	for i, s := range settings {
		if s.ID == id {
			settings[i].Value = value
			settings[i].Flag = flag
			return
		}
	}
	m.byKey[hostPort] = append(settings, spdysession.Setting{ID: id, Flag: flag, Value: value})
}

func (m *MemStore) ClearSettings(hostPort string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byKey, hostPort)
}

// FileStore wraps a MemStore with JSON-file persistence: plain
// encoding/json over an os.ReadFile'd file for loading, and an
// os.Rename-based atomic write for saving so a crash mid-flush never
// leaves a half-written properties file behind.
type FileStore struct {
	*MemStore
	path string
	mu   sync.Mutex
}

// OpenFileStore loads path if it exists (an absent file is not an error,
// it just starts empty) and returns a FileStore that flushes to path on
// every SetSetting/ClearSettings call.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{MemStore: NewMemStore(), path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, errors.Wrap(err, "properties: read store file")
	}

	var onDisk map[string][]settingEntry
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, errors.Wrap(err, "properties: decode store file")
	}
	for host, entries := range onDisk {
		settings := make([]spdysession.Setting, len(entries))
		for i, e := range entries {
			settings[i] = spdysession.Setting{ID: e.ID, Flag: e.Flag, Value: e.Value}
		}
		fs.byKey[host] = settings
	}
	return fs, nil
}

func (fs *FileStore) SetSetting(hostPort string, id spdysession.SettingID, flag spdysession.ControlFlags, value uint32) {
	fs.MemStore.SetSetting(hostPort, id, flag, value)
	fs.flush()
}

func (fs *FileStore) ClearSettings(hostPort string) {
	fs.MemStore.ClearSettings(hostPort)
	fs.flush()
}

func (fs *FileStore) flush() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.MemStore.mu.RLock()
	onDisk := make(map[string][]settingEntry, len(fs.MemStore.byKey))
	for host, settings := range fs.MemStore.byKey {
		entries := make([]settingEntry, len(settings))
		for i, s := range settings {
			entries[i] = settingEntry{ID: s.ID, Flag: s.Flag, Value: s.Value}
		}
		onDisk[host] = entries
	}
	fs.MemStore.mu.RUnlock()

	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, fs.path)
}
