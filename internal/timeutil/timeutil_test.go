package timeutil

import (
	"errors"
	"testing"
	"time"
)

func TestParsePlannedMinutes(t *testing.T) {
	t.Run("empty input falls back to the default", func(t *testing.T) {
		minutes, err := ParsePlannedMinutes("", 10)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if minutes != 10 {
			t.Fatalf("expected default of 10, got %d", minutes)
		}
	})

	t.Run("accepts plain minute totals", func(t *testing.T) {
		minutes, err := ParsePlannedMinutes("  25 ", 10)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if minutes != 25 {
			t.Fatalf("expected 25, got %d", minutes)
		}
	})

	t.Run("accepts hour and minute suffixes", func(t *testing.T) {
		cases := map[string]int{
			"90m":   90,
			"2h":    120,
			"1h30m": 90,
			"1H15M": 75,
		}
		for input, want := range cases {
			minutes, err := ParsePlannedMinutes(input, 10)
			if err != nil {
				t.Fatalf("ParsePlannedMinutes(%q) returned %v", input, err)
			}
			if minutes != want {
				t.Fatalf("ParsePlannedMinutes(%q) = %d, want %d", input, minutes, want)
			}
		}
	})

	t.Run("rejects malformed and non-positive values", func(t *testing.T) {
		for _, input := range []string{"0", "-5", "abc", "1h-30m", "h30m", "30s"} {
			if _, err := ParsePlannedMinutes(input, 10); !errors.Is(err, ErrInvalidDuration) {
				t.Fatalf("ParsePlannedMinutes(%q) expected ErrInvalidDuration, got %v", input, err)
			}
		}
	})
}

func TestSplitMinutes(t *testing.T) {
	hours, minutes := SplitMinutes(95)
	if hours != 1 || minutes != 35 {
		t.Fatalf("expected 1h35m, got %dh%dm", hours, minutes)
	}

	hours, minutes = SplitMinutes(-3)
	if hours != 0 || minutes != 0 {
		t.Fatalf("expected zero parts for negative input, got %dh%dm", hours, minutes)
	}
}

func TestFormatMinutes(t *testing.T) {
	if got := FormatMinutes(1, nil); got != "1 minute" {
		t.Fatalf("expected singular minute, got %q", got)
	}
	if got := FormatMinutes(120, nil); got != "2 hours" {
		t.Fatalf("expected hours only, got %q", got)
	}
	if got := FormatMinutes(90, nil); got != "1 hour 30 minutes" {
		t.Fatalf("expected combined form, got %q", got)
	}

	labeler := func(unit string, value int) string { return unit + "!" }
	if got := FormatMinutes(5, labeler); got != "5 minute!" {
		t.Fatalf("expected custom labels to be used, got %q", got)
	}
}

func TestElapsedMinutesAndRatio(t *testing.T) {
	start := time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC)
	now := start.Add(9 * time.Minute)

	elapsed := ElapsedMinutes(start, now)
	if elapsed != 9 {
		t.Fatalf("expected 9 elapsed minutes, got %v", elapsed)
	}

	if got := ElapsedMinutes(now, start); got != 0 {
		t.Fatalf("expected clamped zero for negative span, got %v", got)
	}

	if got := Ratio(elapsed, 10); got != 0.9 {
		t.Fatalf("expected ratio 0.9, got %v", got)
	}
	if got := Ratio(elapsed, 0); got != 0 {
		t.Fatalf("expected zero ratio for zero plan, got %v", got)
	}

	if got := ActualMinutes(start, start.Add(14*time.Minute)); got != 14 {
		t.Fatalf("expected 14 actual minutes, got %v", got)
	}
}
