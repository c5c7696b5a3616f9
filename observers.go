package modlink

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

type observerEntry struct {
	observer Observer
	types    []string // sorted; empty means every type
	since    time.Time
}

func (e observerEntry) wants(eventType string) bool {
	if len(e.types) == 0 {
		return true
	}
	_, found := slices.BinarySearch(e.types, eventType)
	return found
}

// observerSet is the registration table behind Host's Subject methods.
type observerSet struct {
	mu      sync.RWMutex
	entries map[string]observerEntry
}

func (s *observerSet) add(o Observer, eventTypes []string) {
	types := slices.Clone(eventTypes)
	slices.Sort(types)
	types = slices.Compact(types)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]observerEntry)
	}
	s.entries[o.ObserverID()] = observerEntry{observer: o, types: types, since: time.Now()}
}

func (s *observerSet) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

// interested snapshots the observers subscribed to eventType.
func (s *observerSet) interested(eventType string) []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Observer
	for _, e := range s.entries {
		if e.wants(eventType) {
			out = append(out, e.observer)
		}
	}
	return out
}

func (s *observerSet) infos() []ObserverInfo {
	s.mu.RLock()
	out := make([]ObserverInfo, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, ObserverInfo{ID: id, EventTypes: slices.Clone(e.types), RegisteredAt: e.since})
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ObserverInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// deliver calls o on its own goroutine. Errors and panics are logged.
func deliver(ctx context.Context, logger Logger, o Observer, event cloudevents.Event) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Observer panicked", "observerID", o.ObserverID(), "event", event.Type(), "panic", r)
			}
		}()
		if err := o.OnEvent(ctx, event); err != nil {
			logger.Error("Observer failed", "observerID", o.ObserverID(), "event", event.Type(), "error", err)
		}
	}()
}
