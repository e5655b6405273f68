//go:build windows

package scripting

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/antonkrylov/saprunner/internal/sap"
)

// sFalse is returned by CoInitializeEx when the thread is already initialized.
const sFalse = 0x00000001

// WithCOM runs fn on a locked OS thread with COM initialized in a single
// threaded apartment. All scripting objects must be used inside fn.
func WithCOM(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			return fmt.Errorf("initialize com: %w", err)
		}
	}
	defer ole.CoUninitialize()
	return fn()
}

// Locator attaches to the scripting engine of the running SAP GUI through the
// "SAPGUI" object in the running object table.
type Locator struct{}

func (Locator) Locate() (sap.Engine, error) {
	unknown, err := ole.GetObject(ProgramID, nil, ole.IID_IDispatch)
	if err != nil {
		return nil, fmt.Errorf("get %s object: %w", ProgramID, err)
	}
	defer unknown.Release()

	gui, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, fmt.Errorf("query %s dispatch: %w", ProgramID, err)
	}
	defer gui.Release()

	app, err := dispatchResult(oleutil.CallMethod(gui, "GetScriptingEngine"))
	if err != nil {
		return nil, fmt.Errorf("get scripting engine: %w", err)
	}
	if app == nil {
		return nil, errors.New("scripting engine unavailable; check that scripting is enabled")
	}
	return &engine{app: app}, nil
}

type engine struct {
	app *ole.IDispatch
}

func (e *engine) Release() { e.app.Release() }

func (e *engine) Connections() ([]sap.Connection, error) {
	children, err := collection(e.app)
	if err != nil {
		return nil, err
	}
	out := make([]sap.Connection, 0, len(children))
	for _, child := range children {
		out = append(out, &connection{disp: child})
	}
	return out, nil
}

func (e *engine) OpenConnection(description string) (sap.Connection, error) {
	disp, err := dispatchResult(oleutil.CallMethod(e.app, "OpenConnection", description, true))
	if err != nil {
		return nil, err
	}
	if disp == nil {
		return nil, fmt.Errorf("open connection %q returned nothing", description)
	}
	return &connection{disp: disp}, nil
}

type connection struct {
	disp *ole.IDispatch
}

func (c *connection) Description() string {
	v, err := oleutil.GetProperty(c.disp, "Description")
	if err != nil {
		return ""
	}
	defer v.Clear()
	return v.ToString()
}

func (c *connection) Release() { c.disp.Release() }

func (c *connection) Sessions() ([]sap.Scripting, error) {
	children, err := collection(c.disp)
	if err != nil {
		return nil, err
	}
	out := make([]sap.Scripting, 0, len(children))
	for _, child := range children {
		out = append(out, &session{disp: child})
	}
	return out, nil
}

type session struct {
	disp *ole.IDispatch
}

func (s *session) Release() { s.disp.Release() }

// FindByID calls findById with raise=false so a missing control is a nil result
// instead of a COM exception.
func (s *session) FindByID(id string) (sap.Element, error) {
	disp, err := dispatchResult(oleutil.CallMethod(s.disp, "FindById", id, false))
	if err != nil {
		return nil, err
	}
	if disp == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &element{disp: disp}, nil
}

type element struct {
	disp *ole.IDispatch
}

func (e *element) call(method string, args ...any) error {
	v, err := oleutil.CallMethod(e.disp, method, args...)
	if err != nil {
		return err
	}
	return v.Clear()
}

func (e *element) put(name string, value any) error {
	v, err := oleutil.PutProperty(e.disp, name, value)
	if err != nil {
		return err
	}
	return v.Clear()
}

func (e *element) SetText(value string) error { return e.put("Text", value) }
func (e *element) Press() error { return e.call("Press") }
func (e *element) Select() error { return e.call("Select") }
func (e *element) SetFocus() error { return e.call("SetFocus") }
func (e *element) SetCaretPosition(pos int) error { return e.put("CaretPosition", int32(pos)) }
func (e *element) SendVKey(code int) error { return e.call("SendVKey", int32(code)) }
func (e *element) Maximize() error { return e.call("Maximize") }
func (e *element) Release() { e.disp.Release() }

// collection returns the Children of a scripting object as dispatch pointers.
func collection(parent *ole.IDispatch) ([]*ole.IDispatch, error) {
	children, err := dispatchResult(oleutil.GetProperty(parent, "Children"))
	if err != nil {
		return nil, err
	}
	if children == nil {
		return nil, nil
	}
	defer children.Release()

	countVar, err := oleutil.GetProperty(children, "Count")
	if err != nil {
		return nil, fmt.Errorf("count children: %w", err)
	}
	count := int(countVar.Val)
	countVar.Clear()

	out := make([]*ole.IDispatch, 0, count)
	for i := 0; i < count; i++ {
		item, err := dispatchResult(oleutil.CallMethod(children, "ElementAt", int32(i)))
		if err != nil {
			for _, d := range out {
				d.Release()
			}
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		if item != nil {
			out = append(out, item)
		}
	}
	return out, nil
}

// dispatchResult unwraps a VARIANT holding an object. Empty and null results
// return a nil dispatch without error.
func dispatchResult(v *ole.VARIANT, err error) (*ole.IDispatch, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	switch v.VT {
	case ole.VT_EMPTY, ole.VT_NULL:
		return nil, nil
	case ole.VT_DISPATCH:
		return v.ToIDispatch(), nil
	default:
		defer v.Clear()
		return nil, fmt.Errorf("unexpected variant type %d", v.VT)
	}
}
