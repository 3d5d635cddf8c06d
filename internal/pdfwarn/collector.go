// Package pdfwarn collects warnings raised while one file is being processed.
package pdfwarn

import (
	"fmt"
	"strings"
	"sync"

	pdflog "github.com/pdfcpu/pdfcpu/pkg/log"
)

// Sources of captured events.
const (
	SourceLibrary  = "pdfcpu"
	SourceDocument = "document"
)

// Event is a single captured warning.
type Event struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Collector accumulates warnings for one file. The zero value is not usable;
// use NewCollector.
type Collector struct {
	mu     sync.Mutex
	events []Event
	sealed bool
	late   []Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add records a warning. A nil collector drops it.
func (c *Collector) Add(source, msg string) {
	if c == nil {
		return
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	c.mu.Lock()
	if c.sealed {
		c.late = append(c.late, Event{Source: source, Message: msg})
	} else {
		c.events = append(c.events, Event{Source: source, Message: msg})
	}
	c.mu.Unlock()
}

// Seal ends the source-reading phase. Events added afterwards are kept
// apart and only reported by Late, so Len and Events stop changing.
func (c *Collector) Seal() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

// Late returns a copy of the events recorded after Seal.
func (c *Collector) Late() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.late) == 0 {
		return nil
	}
	out := make([]Event, len(c.late))
	copy(out, c.late)
	return out
}

// Addf is Add with formatting.
func (c *Collector) Addf(source, format string, args ...any) {
	c.Add(source, fmt.Sprintf(format, args...))
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Messages returns the recorded messages prefixed with their source.
func (c *Collector) Messages() []string {
	events := c.Events()
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Source+": "+e.Message)
	}
	return out
}

// Len returns the number of recorded events.
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// captureMu serializes library capture; pdfcpu's loggers are package globals.
var captureMu sync.Mutex

// Capture routes pdfcpu's CLI logger into c until release is called.
// Captures are exclusive: a second Capture blocks until the first is released.
func Capture(c *Collector) (release func()) {
	captureMu.Lock()
	pdflog.SetCLILogger(libraryLogger{c: c})
	var once sync.Once
	return func() {
		once.Do(func() {
			pdflog.SetCLILogger(nil)
			captureMu.Unlock()
		})
	}
}

// libraryLogger adapts a Collector to pdfcpu's log.Logger interface.
type libraryLogger struct{ c *Collector }

func (l libraryLogger) Printf(format string, args ...interface{}) {
	l.c.Addf(SourceLibrary, format, args...)
}

func (l libraryLogger) Println(args ...interface{}) {
	l.c.Add(SourceLibrary, fmt.Sprintln(args...))
}

func (l libraryLogger) Fatalf(format string, args ...interface{}) {
	l.c.Addf(SourceLibrary, format, args...)
}

func (l libraryLogger) Fatalln(args ...interface{}) {
	l.c.Add(SourceLibrary, fmt.Sprintln(args...))
}
