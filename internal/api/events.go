package api

import (
	"sync"

	"github.com/nerrad567/espnow-bridge/internal/bridges/espnow"
)

// defaultEventLogSize is the number of events kept when no size is given.
const defaultEventLogSize = 100

// LoggedEvent is a fired event with its logbook description.
type LoggedEvent struct {
	espnow.EventMessage
	MAC     string              `json:"mac"`
	Logbook espnow.LogbookEntry `json:"logbook"`
}

// EventLog keeps the most recent events in a ring buffer. It is an
// espnow.EventSink.
//
// Thread Safety: safe for concurrent use.
type EventLog struct {
	nodes *espnow.NodeRegistry

	mu      sync.RWMutex
	entries []LoggedEvent
	next    int
	full    bool
}

// NewEventLog creates a log holding up to size events. nodes resolves
// device names for logbook messages.
func NewEventLog(nodes *espnow.NodeRegistry, size int) *EventLog {
	if size <= 0 {
		size = defaultEventLogSize
	}
	return &EventLog{
		nodes:   nodes,
		entries: make([]LoggedEvent, size),
	}
}

// EventFired implements espnow.EventSink.
func (l *EventLog) EventFired(ev espnow.Event) {
	entry := LoggedEvent{
		EventMessage: espnow.NewEventMessage(ev),
		MAC:          ev.MAC,
		Logbook:      espnow.DescribeEvent(l.nodes, ev.Data),
	}

	l.mu.Lock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

// Recent returns up to limit events, newest first.
func (l *EventLog) Recent(limit int) []LoggedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := l.next
	if l.full {
		count = len(l.entries)
	}
	if limit > count {
		limit = count
	}

	out := make([]LoggedEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
