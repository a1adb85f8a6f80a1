package clock

import (
	"testing"
	"time"
)

func TestDayStampJST(t *testing.T) {
	// 2025-03-01T23:30Z is already 2025-03-02 in JST
	u := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	if got := DayStamp(u, JST); got != "2025-03-02" {
		t.Fatalf("want 2025-03-02, got %s", got)
	}
	// 2025-03-01T14:59Z is still 2025-03-01 in JST
	u = time.Date(2025, 3, 1, 14, 59, 0, 0, time.UTC)
	if got := DayStamp(u, nil); got != "2025-03-01" {
		t.Fatalf("want 2025-03-01, got %s", got)
	}
}

func TestFixedAdvance(t *testing.T) {
	f := &Fixed{T: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.Advance(90 * time.Minute)
	if f.Now().Hour() != 1 || f.Now().Minute() != 30 {
		t.Fatalf("advance did not apply: %v", f.Now())
	}
}
