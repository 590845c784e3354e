// Package eventlog keeps the append-only, timestamped history shown to
// players. It is display-only: nothing is ever replayed from it.
package eventlog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const timeLayout = "15:04:05"

// Entry is one rendered line. Entries pulled from a peer keep the peer's text
// verbatim; At is only as precise as that text.
type Entry struct {
	At      time.Time
	Message string
	text    string
}

func (e Entry) String() string {
	return e.text
}

func newEntry(at time.Time, message string) Entry {
	return Entry{
		At:      at,
		Message: message,
		text:    fmt.Sprintf("[%s] %s", at.Format(timeLayout), message),
	}
}

// ParseEntry reads a "[hh:mm:ss] message" line. Lines without a stamp are
// kept as the message with a zero time.
func ParseEntry(line string) Entry {
	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "] "); end > 0 {
			if at, err := time.Parse(timeLayout, line[1:end]); err == nil {
				return Entry{At: at, Message: line[end+2:], text: line}
			}
		}
	}
	return Entry{Message: line, text: line}
}

type Log struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries []Entry
}

func New(clock clockwork.Clock) *Log {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Log{clock: clock}
}

// Append records message at the current time. Empty messages are dropped.
func (l *Log) Append(message string) (Entry, bool) {
	if strings.TrimSpace(message) == "" {
		return Entry{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e := newEntry(l.clock.Now(), message)
	l.entries = append(l.entries, e)
	return e, true
}

func (l *Log) Appendf(format string, args ...any) (Entry, bool) {
	return l.Append(fmt.Sprintf(format, args...))
}

// Reset replaces the whole history with a single entry. It is the only way
// entries are ever removed.
func (l *Log) Reset(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = []Entry{newEntry(l.clock.Now(), message)}
}

// Clear empties the log when a session is torn down.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Replace swaps in a history pulled from the remote store.
func (l *Log) Replace(lines []string) {
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, ParseEntry(line))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
}

// Lines renders the history in the shape stored in GameState.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.String()
	}
	return out
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
