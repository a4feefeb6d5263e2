package timeutil

import (
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{42 * time.Second, "42s"},
		{5*time.Minute + 3*time.Second, "5m 3s"},
		{2*time.Hour + 1500*time.Millisecond, "2h 0m 1s"},
		{72*time.Hour + 30*time.Minute + 15*time.Second, "3d 0h 30m 15s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatUptime(tt.in); got != tt.want {
				t.Errorf("FormatUptime(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime("yesterday"); got != "yesterday" {
		t.Errorf("FormatTime() = %q, want input unchanged", got)
	}

	ts := "2024-03-01T12:00:00Z"
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Local().Format(LocalTimeFormat)
	if got := FormatTime(ts); got != want {
		t.Errorf("FormatTime(%q) = %q, want %q", ts, got, want)
	}
}
