// Package clipboard puts note lists on the system clipboard for the IW59
// multiple-selection paste.
package clipboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when the host has no usable clipboard.
var ErrUnsupported = errors.New("clipboard unavailable on this host")

// lineSeparator matches what the multiple-selection paste expects.
const lineSeparator = "\r\n"

// Writer writes text to a clipboard backend.
type Writer func(text string) error

// Service joins lines with CRLF and writes them with its Writer.
type Service struct {
	write  Writer
	system bool
}

// New returns a Service over the system clipboard.
func New() *Service {
	return &Service{write: clipboard.WriteAll, system: true}
}

// NewWithWriter returns a Service over a custom backend.
func NewWithWriter(w Writer) *Service {
	return &Service{write: w}
}

// Join returns the clipboard payload for lines.
func Join(lines []string) string {
	return strings.Join(lines, lineSeparator)
}

func (s *Service) CopyLines(lines []string) error {
	if s.write == nil || (s.system && clipboard.Unsupported) {
		return ErrUnsupported
	}
	if err := s.write(Join(lines)); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
