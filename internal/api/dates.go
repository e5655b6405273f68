package api

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the accepted request date spellings.
var dateLayouts = []string{time.DateOnly, "02/01/2006", "02.01.2006"}

// ParseDate accepts YYYY-MM-DD, DD/MM/YYYY and DD.MM.YYYY.
func ParseDate(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD, DD/MM/YYYY or DD.MM.YYYY", v)
}
