// Package automation contains hand-written scripted doubles for automation sessions.
// They are deterministic and safe for concurrent jobs, suitable for unit tests without a browser.
package automation

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/model"
)

// Ensure compile-time conformance to core ports.
var (
	_ core.TargetFactory    = (*ScriptedFactory)(nil)
	_ core.AutomationTarget = (*Session)(nil)
)

// Page is what a session has been driven to by the time content is read.
type Page struct {
	URL    string
	Fields map[string]string
}

// Responder returns the content for a page, or the error reading it should fail with.
type Responder func(p Page) (string, error)

// ScriptedFactory opens sessions that answer every read with Respond.
type ScriptedFactory struct {
	Respond Responder
	OpenErr error

	mu     sync.Mutex
	pages  []Page
	opened int
	closed int
}

// NewScriptedFactory returns a factory that serves content from respond.
func NewScriptedFactory(respond Responder) *ScriptedFactory {
	return &ScriptedFactory{Respond: respond}
}

// Static answers every page with the same content.
func Static(content string) Responder {
	return func(Page) (string, error) { return content, nil }
}

// Open starts a new session.
func (f *ScriptedFactory) Open(_ context.Context, _ model.NavigationSpec) (core.AutomationTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.opened++
	return &Session{factory: f, fields: map[string]string{}}, nil
}

// Pages returns every page read so far, in order.
func (f *ScriptedFactory) Pages() []Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Page, len(f.pages))
	copy(out, f.pages)
	return out
}

// Opened returns how many sessions were opened.
func (f *ScriptedFactory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Leaked returns how many opened sessions were never closed.
func (f *ScriptedFactory) Leaked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened - f.closed
}

func (f *ScriptedFactory) read(p Page) (string, error) {
	f.mu.Lock()
	f.pages = append(f.pages, p)
	respond := f.Respond
	f.mu.Unlock()
	if respond == nil {
		return "", nil
	}
	return respond(p)
}

// Session is one scripted automation session.
type Session struct {
	factory *ScriptedFactory
	url     string
	fields  map[string]string
	closed  bool
}

func (s *Session) Navigate(_ context.Context, url string) error {
	s.url = url
	return nil
}

func (s *Session) FillField(_ context.Context, name, value string) error {
	s.fields[name] = value
	return nil
}

func (s *Session) Submit(context.Context) error { return nil }

func (s *Session) WaitForStable(context.Context, time.Duration) error { return nil }

func (s *Session) ReadContent(context.Context) (string, error) {
	return s.factory.read(Page{URL: s.url, Fields: maps.Clone(s.fields)})
}

func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.factory.mu.Lock()
	s.factory.closed++
	s.factory.mu.Unlock()
	return nil
}
