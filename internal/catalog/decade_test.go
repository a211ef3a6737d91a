package catalog

import (
	"testing"
	"time"
)

func TestDecadeRange(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		filter    string
		wantStart int
		wantEnd   int
		wantOK    bool
	}{
		{"1960s", 1960, 1969, true},
		{"1970s", 1970, 1979, true},
		{"1980s", 1980, 1989, true},
		{"1990s", 1990, 1999, true},
		{"2000s", 2000, 2025, true},
		{"all", 0, 0, false},
		{"1800s", 0, 0, false},
		{"", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			start, end, ok := DecadeRange(tt.filter, now)
			if start != tt.wantStart || end != tt.wantEnd || ok != tt.wantOK {
				t.Errorf("DecadeRange(%q) = (%d, %d, %v), want (%d, %d, %v)",
					tt.filter, start, end, ok, tt.wantStart, tt.wantEnd, tt.wantOK)
			}
		})
	}
}
