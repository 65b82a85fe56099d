// Package state implements the durable conversation state store that carries
// multi-step bot flows across process restarts.
//
// The entire store lives in memory as the source of truth; every mutation
// schedules a trailing-edge debounced flush of the full snapshot to a single
// JSON file, so a burst of mutations (from any number of sessions) costs one
// physical write. Reads never touch the disk copy.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is the write-coalescing window applied when Open is given a
// zero debounce.
const DefaultDebounce = 300 * time.Millisecond

// Key identifies one conversation session: a chat, a user within it, and a
// sub-context separating independent flows of the same pair.
type Key struct {
	Chat    int64
	User    int64
	Context string
}

// String renders the composite key in its persisted "{chat}:{user}:{context}"
// form.
func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%s", k.Chat, k.User, k.Context)
}

// record is the persisted per-key entry: a symbolic flow state (nil when the
// session is idle) and an opaque data payload.
type record struct {
	State *string        `json:"state"`
	Data  map[string]any `json:"data,omitempty"`
}

// Store is a durable, debounced key-value store for conversation state.
// All methods are safe for concurrent use; every logical key shares the one
// snapshot file and the one debounce timer.
type Store struct {
	mu       sync.Mutex
	path     string
	debounce time.Duration
	data     map[string]*record
	timer    *time.Timer
	closed   bool
	flushes  int
	log      zerolog.Logger
}

// Open loads the snapshot at path (a missing or corrupt file yields an empty
// store, never an error) and returns a ready Store. A non-positive debounce
// selects DefaultDebounce.
func Open(path string, debounce time.Duration) *Store {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	s := &Store{
		path:     path,
		debounce: debounce,
		data:     map[string]*record{},
		log:      log.With().Str("component", "state").Logger(),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", path).Msg("snapshot unreadable, starting empty")
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("snapshot corrupt, starting empty")
		s.data = map[string]*record{}
	}
	return s
}

// GetState returns the symbolic flow state for k, or ok=false when the
// session is idle (no state set, or cleared).
func (s *Store) GetState(k Key) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data[k.String()]
	if rec == nil || rec.State == nil {
		return "", false
	}
	return *rec.State, true
}

// SetState records the symbolic flow state for k and schedules a flush.
func (s *Store) SetState(k Key, st string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(k).State = &st
	s.scheduleLocked()
}

// ClearState marks the session idle without touching its data payload.
func (s *Store) ClearState(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(k).State = nil
	s.scheduleLocked()
}

// GetData returns a copy of the data payload for k. Mutating the returned map
// does not affect the store; write changes back with SetData.
func (s *Store) GetData(k Key) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]any{}
	if rec := s.data[k.String()]; rec != nil {
		for key, v := range rec.Data {
			out[key] = v
		}
	}
	return out
}

// SetData replaces the data payload for k and schedules a flush.
func (s *Store) SetData(k Key, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(payload))
	for key, v := range payload {
		cp[key] = v
	}
	s.record(k).Data = cp
	s.scheduleLocked()
}

// Clear removes the session entirely (state and data) and schedules a flush.
func (s *Store) Clear(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, k.String())
	s.scheduleLocked()
}

// Close cancels any pending debounce timer and performs one final synchronous
// flush. No update made before Close is lost on an orderly shutdown. The
// store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.flushLocked()
}

// record returns the entry for k, creating it when absent. Caller holds mu.
func (s *Store) record(k Key) *record {
	key := k.String()
	rec := s.data[key]
	if rec == nil {
		rec = &record{}
		s.data[key] = rec
	}
	return rec
}

// scheduleLocked arms (or re-arms) the shared debounce timer. A mutation that
// lands while a flush is pending cancels the timer and starts the window
// over, so sustained bursts still resolve to one write per quiet period.
// Caller holds mu.
func (s *Store) scheduleLocked() {
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.timer = nil
		if err := s.flushLocked(); err != nil {
			s.log.Error().Err(err).Msg("debounced flush failed")
		}
	})
}

// flushLocked rewrites the whole snapshot atomically: the JSON is written to
// a sibling temp file and renamed over the target, so readers never observe a
// truncated snapshot. Caller holds mu.
func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.flushes++
	return nil
}
