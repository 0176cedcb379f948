package events

import (
	"strings"
	"sync"

	"escrowd/core/types"
)

// Entry pairs an emitted event with its position in the log.
type Entry struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

// Log is an append-only record of emitted events. It exists purely for
// external observers; engine correctness never depends on it.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	next    uint64
}

// NewLog returns an empty event log starting at sequence 1.
func NewLog() *Log {
	return &Log{next: 1}
}

// Emit appends the event to the log. Events that do not expose a payload are
// recorded with their type only.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	payload := &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	if provider, ok := evt.(interface{ Event() *types.Event }); ok {
		if full := provider.Event(); full != nil {
			payload = full
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Sequence: l.next, Event: payload})
	l.next++
}

// List returns up to limit entries whose type matches the given prefix, newest
// last. A zero or negative limit returns all matching entries.
func (l *Log) List(prefix string, limit int) []Entry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	matched := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		if prefix != "" && !strings.HasPrefix(entry.Event.Type, prefix) {
			continue
		}
		matched = append(matched, entry)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}
