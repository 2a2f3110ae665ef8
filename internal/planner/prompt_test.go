package planner

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	off := 570
	req := ScheduleRequest{
		Window: Timeframe{Start: 540, End: 1020},
		Tasks: []TaskSpec{
			{Description: "Review code", Priority: PriorityHigh, Type: TypeGeneral},
			{Description: "Standup", Priority: PriorityMedium, Type: TypeMeeting, PreferredOffset: &off},
		},
	}
	p, err := BuildPrompt(req, Policy{BreakMinutes: 20})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if p.System == "" {
		t.Fatalf("empty system prompt")
	}
	for _, want := range []string{
		"09:00 to 17:00 (480 minutes)",
		"1. Review code (priority: high, type: general)",
		"2. Standup (priority: medium, type: meeting, preferred time: 09:30)",
		"learning tasks: 30-180 minutes, 10 minute buffer afterwards, best started around 09:00, 10:00, 14:00",
		"meeting tasks: 15-120 minutes",
		"20 minute break",
		`"schedule"`,
		`"start_time"`,
	} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p.User)
		}
	}
	if strings.Index(p.User, "Review code") > strings.Index(p.User, "Standup") {
		t.Fatalf("task order not preserved")
	}
}

func TestBuildPromptNoTasks(t *testing.T) {
	t.Parallel()

	if _, err := BuildPrompt(ScheduleRequest{Window: Timeframe{Start: 540, End: 720}}, DefaultPolicy()); err == nil {
		t.Fatalf("expected error for empty task list")
	}
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy: %v", err)
	}
	bad := []Policy{
		{MaxTasks: MaxTasks + 1},
		{BreakMinutes: 500},
		{TaskTypes: map[TaskType]TypePolicy{"party": {}}},
		{TaskTypes: map[TaskType]TypePolicy{TypeMeeting: {MinDuration: 60, MaxDuration: 30}}},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("policy %d: expected error", i)
		}
	}
	if err := (Policy{MaxTasks: 0}).Validate(); err != nil {
		t.Fatalf("max_tasks 0 means default, got %v", err)
	}
	err := Policy{MaxTasks: -1}.Validate()
	if err == nil || !strings.Contains(err.Error(), "0..20") {
		t.Fatalf("max_tasks message must state the accepted range, got %v", err)
	}
	merged := Policy{TaskTypes: map[TaskType]TypePolicy{TypeMeeting: {MinDuration: 10, MaxDuration: 60}}}.WithDefaults()
	if merged.TaskTypes[TypeMeeting].MaxDuration != 60 || merged.TaskTypes[TypeLearning].MaxDuration != 180 {
		t.Fatalf("merge=%+v", merged.TaskTypes)
	}
}
