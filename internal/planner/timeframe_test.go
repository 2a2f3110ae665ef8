package planner

import (
	"errors"
	"testing"
)

func TestNormalizeTimeframe(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Timeframe
	}{
		{"9AM-5PM", Timeframe{540, 1020}},
		{"9am - 5pm", Timeframe{540, 1020}},
		{"12am-8am", Timeframe{0, 480}},
		{"8am to 12pm", Timeframe{480, 720}},
		{"09:00-17:00", Timeframe{540, 1020}},
		{"9:00–17:30", Timeframe{540, 1050}},
		{"13:00-24:00", Timeframe{780, 1440}},
		{"9:30am-5pm", Timeframe{570, 1020}},
		{"9:30 am - 12:15 pm", Timeframe{570, 735}},
		{"morning", Timeframe{540, 720}},
		{"Afternoon", Timeframe{780, 1020}},
		{"EVENING", Timeframe{1080, 1260}},
		{"workday", Timeframe{540, 1020}},
		{"Business   Hours", Timeframe{540, 1020}},
	}
	for _, tc := range cases {
		got, err := NormalizeTimeframe(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %+v want %+v", tc.in, got, tc.want)
		}
		if got.Start >= got.End {
			t.Fatalf("%q: start %d not before end %d", tc.in, got.Start, got.End)
		}
	}
}

func TestNormalizeTimeframePresets(t *testing.T) {
	t.Parallel()

	cmd, err := ParseCommand(`morning "Focus work (high, general)"`, 0)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	got, err := NormalizeTimeframe(cmd.Timeframe)
	if err != nil {
		t.Fatalf("NormalizeTimeframe: %v", err)
	}
	if got != (Timeframe{Start: 540, End: 720}) {
		t.Fatalf("got %+v", got)
	}
}

func TestNormalizeTimeframeErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want error
	}{
		{"tomorrow", ErrTimeframeFormat},
		{"", ErrTimeframeFormat},
		{"13pm-5pm", ErrTimeframeFormat},
		{"25:00-26:00", ErrTimeframeFormat},
		{"5pm-9am", ErrTimeframeOrder},
		{"11pm-1am", ErrTimeframeOrder},
		{"10:00-10:00", ErrTimeframeOrder},
		{"10:00-10:45", ErrTimeframeTooShort},
		{"9:30am-10am", ErrTimeframeTooShort},
		{"01:00-23:00", ErrTimeframeTooLong},
	}
	for _, tc := range cases {
		_, err := NormalizeTimeframe(tc.in)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%q: got %v want %v", tc.in, err, tc.want)
		}
		var te *TimeframeError
		if !errors.As(err, &te) || te.Input != tc.in {
			t.Fatalf("%q: expected TimeframeError carrying input, got %v", tc.in, err)
		}
	}
}

func TestNormalizeTimeframeBounds(t *testing.T) {
	t.Parallel()

	if _, err := NormalizeTimeframe("10:00-11:00"); err != nil {
		t.Fatalf("60 minutes must be accepted: %v", err)
	}
	if _, err := NormalizeTimeframe("06:00-22:00"); err != nil {
		t.Fatalf("960 minutes must be accepted: %v", err)
	}
}

func TestTimeframeCanonicalIdempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"9am-5pm", "morning", "9:30am-5pm", "00:00-16:00", "08:05-09:10", "13:00-24:00"} {
		first, err := NormalizeTimeframe(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		second, err := NormalizeTimeframe(first.String())
		if err != nil {
			t.Fatalf("%q -> %q: %v", in, first.String(), err)
		}
		if first != second {
			t.Fatalf("%q: %+v != %+v", in, first, second)
		}
	}
}
