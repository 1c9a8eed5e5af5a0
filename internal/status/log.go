// Package status keeps the append-only, human-readable session journal.
package status

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Entry is one timestamped journal line. Entries are appended, never
// mutated or removed.
type Entry struct {
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// Log collects entries and mirrors each one to zerolog.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) append(sev Severity, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Time: time.Now(), Severity: sev, Message: msg})
	l.mu.Unlock()

	var ev *zerolog.Event
	switch sev {
	case SeverityError:
		ev = log.Error()
	case SeverityWarning:
		ev = log.Warn()
	default:
		ev = log.Info()
	}
	ev.Str("module", "status").Str("severity", string(sev)).Msg(msg)
}

func (l *Log) Info(msg string)    { l.append(SeverityInfo, msg) }
func (l *Log) Success(msg string) { l.append(SeveritySuccess, msg) }
func (l *Log) Error(msg string)   { l.append(SeverityError, msg) }
func (l *Log) Warning(msg string) { l.append(SeverityWarning, msg) }

// Entries returns a snapshot for display.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the most recent entry, if any.
func (l *Log) Last() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}
