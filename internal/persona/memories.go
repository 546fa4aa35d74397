// Package persona serves the bot's recallable memories.
package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EmptyMemoryReply is sent when no memories are loaded.
const EmptyMemoryReply = "ذهنم در حال حاضر خالیه، چیزی برای به یاد آوردن ندارم."

type memoriesFile struct {
	Memories []string `json:"memories"`
}

// Memories holds the contents of memories.json.
type Memories struct {
	path string

	mu    sync.RWMutex
	items []string
}

// NewMemories creates an empty set bound to path. Call Load to read it.
func NewMemories(path string) *Memories {
	return &Memories{path: path}
}

// Load (re)reads the file. A missing file leaves the set empty; a malformed
// file keeps the previous contents.
func (m *Memories) Load() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.set(nil)
		slog.Warn("memories file not found", "path", m.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read memories: %w", err)
	}
	var mf memoriesFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("parse memories: %w", err)
	}
	m.set(mf.Memories)
	slog.Info("memories loaded", "count", len(mf.Memories))
	return nil
}

func (m *Memories) set(items []string) {
	m.mu.Lock()
	m.items = items
	m.mu.Unlock()
}

// Len returns the number of memories.
func (m *Memories) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Random returns one memory, or EmptyMemoryReply when there are none.
func (m *Memories) Random() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.items) == 0 {
		return EmptyMemoryReply
	}
	return m.items[rand.IntN(len(m.items))]
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file are handled.
func (m *Memories) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(m.path)

	const debounce = 200 * time.Millisecond
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				pending = time.After(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("memories watcher error", "error", err)
		case <-pending:
			pending = nil
			if err := m.Load(); err != nil {
				slog.Warn("memories reload failed", "error", err)
			}
		}
	}
}
