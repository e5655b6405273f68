package sap

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeGUI is an in-memory scripting session. Controls exist when present[id]
// is true; hooks run after the matching action.
type fakeGUI struct {
	mu       sync.Mutex
	present  map[string]bool
	texts    map[string]string
	carets   map[string]int
	actions  []string
	onPress  map[string]func(g *fakeGUI)
	onSelect map[string]func(g *fakeGUI)
	failOn   map[string]error
	released int
}

func newFakeGUI(ids ...string) *fakeGUI {
	g := &fakeGUI{
		present:  make(map[string]bool),
		texts:    make(map[string]string),
		carets:   make(map[string]int),
		onPress:  make(map[string]func(g *fakeGUI)),
		onSelect: make(map[string]func(g *fakeGUI)),
		failOn:   make(map[string]error),
	}
	g.show(mainWindow)
	g.show(ids...)
	return g
}

func (g *fakeGUI) show(ids ...string) {
	for _, id := range ids {
		g.present[id] = true
	}
}

func (g *fakeGUI) hide(ids ...string) {
	for _, id := range ids {
		delete(g.present, id)
	}
}

func (g *fakeGUI) FindByID(id string) (Element, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.present[id] {
		return nil, fmt.Errorf("control %s not found", id)
	}
	return &fakeElement{gui: g, id: id}, nil
}

func (g *fakeGUI) record(action string) {
	g.actions = append(g.actions, action)
}

func (g *fakeGUI) count(action string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, a := range g.actions {
		if a == action {
			n++
		}
	}
	return n
}

func (g *fakeGUI) text(id string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.texts[id]
}

type fakeElement struct {
	gui *fakeGUI
	id  string
}

func (e *fakeElement) act(action string, fn func()) error {
	g := e.gui
	g.mu.Lock()
	if err := g.failOn[action+" "+e.id]; err != nil {
		g.mu.Unlock()
		return err
	}
	g.record(action + " " + e.id)
	if fn != nil {
		fn()
	}
	g.mu.Unlock()
	return nil
}

func (e *fakeElement) SetText(value string) error {
	return e.act("settext", func() { e.gui.texts[e.id] = value })
}

func (e *fakeElement) Press() error {
	if err := e.act("press", nil); err != nil {
		return err
	}
	if hook := e.gui.onPress[e.id]; hook != nil {
		hook(e.gui)
	}
	return nil
}

func (e *fakeElement) Select() error {
	if err := e.act("select", nil); err != nil {
		return err
	}
	if hook := e.gui.onSelect[e.id]; hook != nil {
		hook(e.gui)
	}
	return nil
}

func (e *fakeElement) SetFocus() error { return e.act("focus", nil) }

func (e *fakeElement) SetCaretPosition(pos int) error {
	return e.act("caret", func() { e.gui.carets[e.id] = pos })
}

func (e *fakeElement) SendVKey(code int) error {
	return e.act(fmt.Sprintf("vkey%d", code), nil)
}

func (e *fakeElement) Maximize() error { return e.act("maximize", nil) }

func (e *fakeElement) Release() {
	e.gui.mu.Lock()
	e.gui.released++
	e.gui.mu.Unlock()
}

// fakeConn is an open connection with fixed sessions.
type fakeConn struct {
	desc     string
	sessions []Scripting
	released int
}

func (c *fakeConn) Description() string { return c.desc }

func (c *fakeConn) Release() { c.released++ }

func (c *fakeConn) Sessions() ([]Scripting, error) { return c.sessions, nil }

// fakeEngine opens connections whose description is listed in openable.
type fakeEngine struct {
	mu       sync.Mutex
	conns    []Connection
	openable map[string]*fakeConn
	attempts []string
}

func (e *fakeEngine) Connections() ([]Connection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Connection(nil), e.conns...), nil
}

func (e *fakeEngine) OpenConnection(description string) (Connection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = append(e.attempts, description)
	conn, ok := e.openable[description]
	if !ok {
		return nil, errors.New("connection entry not found")
	}
	e.conns = append(e.conns, conn)
	return conn, nil
}

func (e *fakeEngine) add(conn *fakeConn) {
	e.mu.Lock()
	e.conns = append(e.conns, conn)
	e.mu.Unlock()
}

// fakeLocator fails until launched is set, or always when unsupported is set.
type fakeLocator struct {
	mu          sync.Mutex
	engine      Engine
	running     bool
	unsupported bool
	calls       int
}

func (l *fakeLocator) Locate() (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.unsupported {
		return nil, ErrUnsupportedPlatform
	}
	if !l.running {
		return nil, errors.New("SAPGUI object not registered")
	}
	return l.engine, nil
}

type fakeLauncher struct {
	locator  *fakeLocator
	launched []string
	start    bool
}

func (f *fakeLauncher) Launch(path string) error {
	f.launched = append(f.launched, path)
	if f.start {
		f.locator.mu.Lock()
		f.locator.running = true
		f.locator.mu.Unlock()
	}
	return nil
}

type fakeLogonUI struct {
	err    error
	calls  int
	onOpen func()
}

func (f *fakeLogonUI) OpenConnection(_ context.Context, _, _ string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.onOpen != nil {
		f.onOpen()
	}
	return nil
}
