// Package report carries status, progress and detail events from the
// scanner and the flash orchestrator to whatever presents them.
package report

import (
	"sync"

	"github.com/buckleypaul/railflash/internal/logger"
)

// Severity classifies a status line.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Reporter is the sink for the three independent event channels.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Status(text string, sev Severity)
	Progress(percent int, label string)
	Detail(text string)
}

// Kind tells which Reporter method produced an Event.
type Kind int

const (
	KindStatus Kind = iota
	KindProgress
	KindDetail
)

// Event is one reporter call captured as a value.
type Event struct {
	Kind     Kind
	Text     string
	Severity Severity
	Percent  int
	Label    string
}

// Channel delivers events on a channel so a consumer can drain them on its
// own schedule. Sends block when the buffer is full, so no event is lost and
// ordering is preserved.
type Channel struct {
	ch chan Event
}

// NewChannel creates a channel reporter with the given buffer size.
func NewChannel(buffer int) *Channel {
	return &Channel{ch: make(chan Event, buffer)}
}

// Events returns the receive side.
func (c *Channel) Events() <-chan Event { return c.ch }

func (c *Channel) Status(text string, sev Severity) {
	c.ch <- Event{Kind: KindStatus, Text: text, Severity: sev}
}

func (c *Channel) Progress(percent int, label string) {
	c.ch <- Event{Kind: KindProgress, Percent: percent, Label: label}
}

func (c *Channel) Detail(text string) {
	c.ch <- Event{Kind: KindDetail, Text: text}
}

// Log writes every event as a structured log record.
type Log struct {
	log *logger.Logger
}

// NewLog creates a reporter backed by l, or the default logger when l is nil.
func NewLog(l *logger.Logger) *Log {
	if l == nil {
		l = logger.Default()
	}
	return &Log{log: l.Component("report")}
}

func (r *Log) Status(text string, sev Severity) {
	switch sev {
	case SeverityError:
		r.log.Error(text)
	case SeverityWarning:
		r.log.Warn(text)
	default:
		r.log.Info(text, "severity", sev.String())
	}
}

func (r *Log) Progress(percent int, label string) {
	r.log.Info("progress", "percent", percent, "label", label)
}

func (r *Log) Detail(text string) {
	r.log.Info("detail", "text", text)
}

type multi []Reporter

// Multi fans every event out to each reporter in order.
func Multi(rs ...Reporter) Reporter {
	var out multi
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Status(text string, sev Severity) {
	for _, r := range m {
		r.Status(text, sev)
	}
}

func (m multi) Progress(percent int, label string) {
	for _, r := range m {
		r.Progress(percent, label)
	}
}

func (m multi) Detail(text string) {
	for _, r := range m {
		r.Detail(text)
	}
}

// recovering shields callers from a sink that panics.
type recovering struct {
	next Reporter
	log  *logger.Logger
}

// Recovering wraps r so a panic inside any of its methods is logged and
// swallowed instead of unwinding into the caller.
func Recovering(r Reporter, l *logger.Logger) Reporter {
	if l == nil {
		l = logger.Default()
	}
	return &recovering{next: r, log: l}
}

func (r *recovering) guard(method string) {
	if v := recover(); v != nil {
		r.log.Error("reporter panicked", "method", method, "panic", v)
	}
}

func (r *recovering) Status(text string, sev Severity) {
	defer r.guard("status")
	r.next.Status(text, sev)
}

func (r *recovering) Progress(percent int, label string) {
	defer r.guard("progress")
	r.next.Progress(percent, label)
}

func (r *recovering) Detail(text string) {
	defer r.guard("detail")
	r.next.Detail(text)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Status(string, Severity) {}
func (Nop) Progress(int, string)    {}
func (Nop) Detail(string)           {}

// Recorder keeps every event in memory. Used by tests and by callers that
// want to inspect a finished run.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Status(text string, sev Severity) {
	r.add(Event{Kind: KindStatus, Text: text, Severity: sev})
}

func (r *Recorder) Progress(percent int, label string) {
	r.add(Event{Kind: KindProgress, Percent: percent, Label: label})
}

func (r *Recorder) Detail(text string) {
	r.add(Event{Kind: KindDetail, Text: text})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Percents returns the reported percent values in order.
func (r *Recorder) Percents() []int {
	var out []int
	for _, e := range r.Events() {
		if e.Kind == KindProgress {
			out = append(out, e.Percent)
		}
	}
	return out
}

// Statuses returns the reported status texts in order.
func (r *Recorder) Statuses() []string {
	var out []string
	for _, e := range r.Events() {
		if e.Kind == KindStatus {
			out = append(out, e.Text)
		}
	}
	return out
}

// LastDetail returns the most recent detail text, or "".
func (r *Recorder) LastDetail() string {
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == KindDetail {
			return events[i].Text
		}
	}
	return ""
}
