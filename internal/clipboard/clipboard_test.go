package clipboard

import (
	"errors"
	"testing"
)

func TestCopyLinesJoinsWithCRLF(t *testing.T) {
	var got string
	s := NewWithWriter(func(text string) error {
		got = text
		return nil
	})
	if err := s.CopyLines([]string{"123456789", "987654321"}); err != nil {
		t.Fatalf("CopyLines: %v", err)
	}
	if got != "123456789\r\n987654321" {
		t.Fatalf("payload = %q", got)
	}
}

func TestCopyLinesWrapsWriterError(t *testing.T) {
	boom := errors.New("clipboard locked")
	s := NewWithWriter(func(string) error { return boom })
	if err := s.CopyLines([]string{"1"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestCopyLinesWithoutWriter(t *testing.T) {
	if err := NewWithWriter(nil).CopyLines([]string{"1"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
