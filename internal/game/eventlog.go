package game

import (
	"fmt"
	"time"
)

// LogEntry is one line of room narration.
type LogEntry struct {
	At      int64  `json:"t"` // unix millis
	Message string `json:"msg"`
}

// EventLog is an append-only narration of a room, kept in a fixed-size ring
// so long-lived rooms do not grow without bound. Reads copy; they never
// mutate the log.
type EventLog struct {
	entries []LogEntry
	start   int
	size    int
	total   int
}

// NewEventLog creates a log retaining at most capacity entries.
func NewEventLog(capacity int) *EventLog {
	if capacity < 1 {
		capacity = 1
	}
	return &EventLog{entries: make([]LogEntry, capacity)}
}

// Append adds a message stamped with at.
func (l *EventLog) Append(at time.Time, format string, args ...any) {
	entry := LogEntry{At: at.UnixMilli(), Message: fmt.Sprintf(format, args...)}
	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = entry
		l.size++
	} else {
		l.entries[l.start] = entry
		l.start = (l.start + 1) % capacity
	}
	l.total++
}

// Len returns the number of retained entries.
func (l *EventLog) Len() int { return l.size }

// Total returns the number of entries ever appended.
func (l *EventLog) Total() int { return l.total }

// Recent returns up to n of the newest entries, oldest first.
func (l *EventLog) Recent(n int) []LogEntry {
	if n > l.size {
		n = l.size
	}
	if n <= 0 {
		return []LogEntry{}
	}
	out := make([]LogEntry, n)
	capacity := len(l.entries)
	first := l.start + l.size - n
	for i := 0; i < n; i++ {
		out[i] = l.entries[(first+i)%capacity]
	}
	return out
}

// Last returns the newest entry.
func (l *EventLog) Last() (LogEntry, bool) {
	if l.size == 0 {
		return LogEntry{}, false
	}
	return l.entries[(l.start+l.size-1)%len(l.entries)], true
}
