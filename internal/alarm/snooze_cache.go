package alarm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// SnoozeCache is the durable local map of schedule id to snooze expiry.
// It is rewritten on every snooze so a crash between snoozing and the next
// state flush cannot lose the suppression. Entries are keyed by schedule id
// only, not by day: a long snooze set before midnight carries into the next
// day until its expiry passes.
type SnoozeCache struct {
	mu      sync.Mutex
	path    string
	entries map[int64]int64 // schedule id -> expiry, unix milliseconds
}

// LoadSnoozeCache reads the cache file at path. A missing file yields an
// empty cache; a corrupt file is discarded rather than failing startup.
func LoadSnoozeCache(path string) (*SnoozeCache, error) {
	c := &SnoozeCache{
		path:    path,
		entries: make(map[int64]int64),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snooze cache: %w", err)
	}

	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return c, nil
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		c.entries[id] = v
	}
	return c, nil
}

// Get returns the expiry for a schedule id, if one is recorded.
func (c *SnoozeCache) Get(scheduleID int64) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms, ok := c.entries[scheduleID]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// SetAll records expiries for a batch of schedule ids and persists the
// whole map immediately. Entries already expired at save time are pruned.
func (c *SnoozeCache) SetAll(expiries map[int64]time.Time, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, exp := range expiries {
		c.entries[id] = exp.UnixMilli()
	}
	for id, ms := range c.entries {
		if ms <= now.UnixMilli() {
			delete(c.entries, id)
		}
	}
	return c.save()
}

// Clear drops all entries and persists the empty map. Used on profile switch.
func (c *SnoozeCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[int64]int64)
	return c.save()
}

// Len returns the number of recorded snoozes.
func (c *SnoozeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// save writes the map via a temp file and rename so a crash mid-write
// leaves the previous file intact. Callers hold c.mu.
func (c *SnoozeCache) save() error {
	raw := make(map[string]int64, len(c.entries))
	for id, ms := range c.entries {
		raw[strconv.FormatInt(id, 10)] = ms
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal snooze cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create snooze cache dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snooze cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename snooze cache: %w", err)
	}
	return nil
}
