package sap

// Element is one addressable control of a live GUI session.
type Element interface {
	SetText(value string) error
	Press() error
	Select() error
	SetFocus() error
	SetCaretPosition(pos int) error
	SendVKey(code int) error
	Maximize() error
}

// Scripting is the raw session handle exposed by a scripting binding.
// Element ids are hierarchical paths such as "wnd[0]/usr/ctxtPC_QMART"; they are
// passed through untouched.
type Scripting interface {
	FindByID(id string) (Element, error)
}

type releaser interface {
	Release()
}

const mainWindow = "wnd[0]"

// Session wraps a scripting handle so every missing control surfaces as a typed
// automation error naming the id.
type Session struct {
	raw Scripting
}

// NewSession wraps a raw session handle.
func NewSession(raw Scripting) *Session {
	return &Session{raw: raw}
}

// Find resolves an element or fails with an automation error naming the id.
func (s *Session) Find(id string) (Element, error) {
	el, err := s.raw.FindByID(id)
	if err != nil {
		return nil, automationErr(err, "sap element not found: %s", id)
	}
	if el == nil {
		return nil, automationErr(nil, "sap element not found: %s", id)
	}
	return el, nil
}

// Exists reports whether the element can be resolved. It never fails.
func (s *Session) Exists(id string) bool {
	el, err := s.raw.FindByID(id)
	if err != nil || el == nil {
		return false
	}
	release(el)
	return true
}

func (s *Session) do(id string, op string, fn func(Element) error) error {
	el, err := s.Find(id)
	if err != nil {
		return err
	}
	defer release(el)
	if err := fn(el); err != nil {
		return automationErr(err, "%s %s", op, id)
	}
	return nil
}

func (s *Session) SetText(id, value string) error {
	return s.do(id, "set text on", func(el Element) error { return el.SetText(value) })
}

func (s *Session) Press(id string) error {
	return s.do(id, "press", func(el Element) error { return el.Press() })
}

func (s *Session) Select(id string) error {
	return s.do(id, "select", func(el Element) error { return el.Select() })
}

func (s *Session) SetFocus(id string) error {
	return s.do(id, "focus", func(el Element) error { return el.SetFocus() })
}

func (s *Session) SetCaretPosition(id string, pos int) error {
	return s.do(id, "set caret on", func(el Element) error { return el.SetCaretPosition(pos) })
}

// SendVKey sends a virtual key to the main window (0 is Enter).
func (s *Session) SendVKey(code int) error {
	return s.do(mainWindow, "send vkey to", func(el Element) error { return el.SendVKey(code) })
}

// Maximize maximizes the main window.
func (s *Session) Maximize() error {
	return s.do(mainWindow, "maximize", func(el Element) error { return el.Maximize() })
}

// Release drops the underlying session handle.
func (s *Session) Release() {
	release(s.raw)
}

// release drops a COM reference when the handle holds one.
func release(v any) {
	if r, ok := v.(releaser); ok {
		r.Release()
	}
}

func releaseConnections(conns []Connection, keep Connection) {
	for _, conn := range conns {
		if conn != nil && conn != keep {
			release(conn)
		}
	}
}
