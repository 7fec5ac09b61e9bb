// Package watcher reports when watched files settle with new content.
package watcher

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"
)

// Event reports a watched file whose content changed and then stayed quiet
// for the debounce interval.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

type fileState struct {
	// lastHash is the content seen at start or at the last emitted event.
	lastHash [32]byte
	hashed   bool
	// dirty is set by a write and cleared once the file is checked.
	dirty   bool
	lastMod time.Time
}

// Watcher monitors individual files. Their parent directories are watched
// so that editors which replace files by rename are still seen.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	debounce  time.Duration

	state   map[string]*fileState
	stateMu sync.Mutex

	events chan Event
	errors chan error

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher for the given files.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("watcher: no paths")
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		debounce:  debounce,
		state:     make(map[string]*fileState),
		events:    make(chan Event, 16),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsWatcher.Close()
			return nil, err
		}
		w.paths = append(w.paths, abs)
	}
	return w, nil
}

// Events returns the channel of change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start records the current content of every file and begins watching.
// A file that does not exist yet is picked up when it is created.
func (w *Watcher) Start() error {
	dirs := make(map[string]bool)
	for _, path := range w.paths {
		st := &fileState{}
		if hash, _, err := HashFile(path); err == nil {
			st.lastHash = hash
			st.hashed = true
		} else if !os.IsNotExist(err) {
			return err
		}
		w.state[path] = st

		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	return nil
}

// Stop gracefully shuts down the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		close(w.events)
		close(w.errors)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.stateMu.Lock()
			if st, tracked := w.state[filepath.Clean(event.Name)]; tracked {
				st.dirty = true
				st.lastMod = time.Now()
			}
			w.stateMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.sendErr(err)
		}
	}
}

func (w *Watcher) sendErr(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.checkStableFiles(now)
		}
	}
}

// checkStableFiles hashes files that have been quiet for the debounce
// interval and emits an event for those whose hash changed. The lock is
// released while hashing.
func (w *Watcher) checkStableFiles(now time.Time) {
	threshold := now.Add(-w.debounce)

	type candidate struct {
		path    string
		lastMod time.Time
	}
	var stable []candidate
	w.stateMu.Lock()
	for path, st := range w.state {
		if st.dirty && !st.lastMod.After(threshold) {
			stable = append(stable, candidate{path: path, lastMod: st.lastMod})
		}
	}
	w.stateMu.Unlock()

	for _, c := range stable {
		hash, size, err := HashFile(c.path)

		w.stateMu.Lock()
		st := w.state[c.path]
		if !st.lastMod.Equal(c.lastMod) {
			// written again while hashing; wait for it to settle
			w.stateMu.Unlock()
			continue
		}
		st.dirty = false
		if err != nil {
			w.stateMu.Unlock()
			if !os.IsNotExist(err) {
				w.sendErr(err)
			}
			continue
		}
		if st.hashed && st.lastHash == hash {
			w.stateMu.Unlock()
			continue
		}
		st.lastHash = hash
		st.hashed = true
		w.stateMu.Unlock()

		select {
		case w.events <- Event{Path: c.path, Hash: hash, Size: size, Timestamp: now}:
		case <-w.done:
			return
		}
	}
}

// HashFile computes the BLAKE2b-256 hash of a file by streaming it.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, 0, err
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// WatchedPaths returns the absolute paths being watched.
func (w *Watcher) WatchedPaths() []string {
	return append([]string(nil), w.paths...)
}
