// Package scripting binds the SAP GUI Scripting API to the sap package
// interfaces. The binding only works on Windows; elsewhere Locate reports
// sap.ErrUnsupportedPlatform.
package scripting

import "errors"

// ProgramID is the running-object-table name the SAP GUI registers.
const ProgramID = "SAPGUI"

// ErrNotFound is returned by FindByID when no control has the given id.
var ErrNotFound = errors.New("control not found")
