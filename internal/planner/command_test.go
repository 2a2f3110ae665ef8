package planner

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseCommandPriorityAndType(t *testing.T) {
	t.Parallel()

	cmd, err := ParseCommand(`9AM-5PM "Review code (high, general)" "Team meeting (medium, meeting)"`, 0)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.Timeframe != "9AM-5PM" {
		t.Fatalf("timeframe=%q", cmd.Timeframe)
	}
	want := []TaskSpec{
		{Description: "Review code", Priority: PriorityHigh, Type: TypeGeneral},
		{Description: "Team meeting", Priority: PriorityMedium, Type: TypeMeeting},
	}
	if len(cmd.Tasks) != len(want) {
		t.Fatalf("tasks=%d want %d", len(cmd.Tasks), len(want))
	}
	for i := range want {
		got := cmd.Tasks[i]
		if got.Description != want[i].Description || got.Priority != want[i].Priority || got.Type != want[i].Type || got.PreferredOffset != nil {
			t.Fatalf("task[%d]=%+v want %+v", i, got, want[i])
		}
	}

	win, err := NormalizeTimeframe(cmd.Timeframe)
	if err != nil {
		t.Fatalf("NormalizeTimeframe: %v", err)
	}
	if win != (Timeframe{Start: 540, End: 1020}) {
		t.Fatalf("window=%+v", win)
	}
}

func TestParseCommandErrors(t *testing.T) {
	t.Parallel()

	many := "9am-5pm" + strings.Repeat(` "x"`, MaxTasks+1)
	cases := []struct {
		name   string
		in     string
		reason string
		index  int
	}{
		{"empty", "", ReasonEmptyInput, -1},
		{"blank", "   \t ", ReasonEmptyInput, -1},
		{"only quotes", `"a" "b"`, ReasonNoTimeframe, -1},
		{"no tasks", "morning", ReasonNoTasks, -1},
		{"too many", many, ReasonTooManyTasks, -1},
		{"empty description", `morning "ok" "(high)"`, ReasonEmptyDescription, 1},
		{"blank quoted", `morning "   "`, ReasonEmptyDescription, 0},
		{"long description", `morning "` + strings.Repeat("a", MaxDescriptionLength+1) + `"`, ReasonLongDescription, 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseCommand(tc.in, 0)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.Reason != tc.reason || pe.Index != tc.index {
				t.Fatalf("got %q/%d want %q/%d", pe.Reason, pe.Index, tc.reason, tc.index)
			}
		})
	}
}

func TestParseCommandPolicyMaxTasks(t *testing.T) {
	t.Parallel()

	_, err := ParseCommand(`morning "a" "b" "c"`, 2)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Reason != ReasonTooManyTasks {
		t.Fatalf("expected too many tasks, got %v", err)
	}
}

func TestParseCommandPreservesOrder(t *testing.T) {
	t.Parallel()

	for n := 1; n <= MaxTasks; n++ {
		var b strings.Builder
		b.WriteString("workday")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, ` "task %d (low)"`, i)
		}
		cmd, err := ParseCommand(b.String(), 0)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(cmd.Tasks) != n {
			t.Fatalf("n=%d: got %d tasks", n, len(cmd.Tasks))
		}
		for i, task := range cmd.Tasks {
			if task.Description != fmt.Sprintf("task %d", i) || task.Priority != PriorityLow {
				t.Fatalf("n=%d: task[%d]=%+v", n, i, task)
			}
		}
	}
}

func TestParseCommandTokenizer(t *testing.T) {
	t.Parallel()

	cmd, err := ParseCommand(`  business hours  "Call Bob, then Alice!" extra "open ended`, 0)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.Timeframe != "business hours" {
		t.Fatalf("timeframe=%q", cmd.Timeframe)
	}
	if len(cmd.Tasks) != 2 || cmd.Tasks[0].Description != "Call Bob, then Alice!" || cmd.Tasks[1].Description != "open ended" {
		t.Fatalf("tasks=%+v", cmd.Tasks)
	}
}

func TestParseTaskParams(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		desc     string
		priority Priority
		typ      TaskType
		offset   int // -1 for none
	}{
		{"Write report", "Write report", PriorityMedium, TypeGeneral, -1},
		{"Study Go (LEARNING, High)", "Study Go", PriorityHigh, TypeLearning, -1},
		{"Standup (meeting, 9:30am)", "Standup", PriorityMedium, TypeMeeting, 570},
		{"Gym (low, at 18:00)", "Gym", PriorityLow, TypeGeneral, 1080},
		{"Fix (bug) in parser (high)", "Fix (bug) in parser", PriorityHigh, TypeGeneral, -1},
		{"Plan (urgent, whatever)", "Plan", PriorityMedium, TypeGeneral, -1},
		{"Dup (high, low, meeting, learning)", "Dup", PriorityHigh, TypeMeeting, -1},
		{"Late (2pm, 3pm)", "Late", PriorityMedium, TypeGeneral, 840},
	}
	for _, tc := range cases {
		got, err := ParseTask(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got.Description != tc.desc || got.Priority != tc.priority || got.Type != tc.typ {
			t.Fatalf("%q: got %+v", tc.in, got)
		}
		switch {
		case tc.offset < 0 && got.PreferredOffset != nil:
			t.Fatalf("%q: unexpected offset %d", tc.in, *got.PreferredOffset)
		case tc.offset >= 0 && (got.PreferredOffset == nil || *got.PreferredOffset != tc.offset):
			t.Fatalf("%q: offset=%v want %d", tc.in, got.PreferredOffset, tc.offset)
		}
	}
}

func TestParseTaskErrorInterface(t *testing.T) {
	t.Parallel()

	var err error
	_, err = ParseTask("Write report (high)")
	if err != nil {
		t.Fatalf("valid task returned non-nil error %#v", err)
	}

	_, err = ParseTask("  (high)")
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Reason != ReasonEmptyDescription || pe.Index != -1 {
		t.Fatalf("want empty-description ParseError with Index -1, got %#v", err)
	}

	_, err = ParseCommand(`9am-5pm "ok" "(low)"`, 0)
	if !errors.As(err, &pe) || pe.Index != 1 {
		t.Fatalf("want ParseError at index 1, got %#v", err)
	}
}
