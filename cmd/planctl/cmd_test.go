package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"planbot/internal/planner"
)

func TestJoinArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"9am-5pm", "write report"}, `9am-5pm "write report"`},
		{[]string{"9am-5pm", `"already quoted"`}, `9am-5pm "already quoted"`},
		{[]string{"morning"}, "morning"},
		{[]string{"9am-5pm", "Focus"}, `9am-5pm "Focus"`},
		{[]string{"business hours", "Write report"}, `business hours "Write report"`},
		{[]string{"9am - 5pm", "Write report", "Gym (high)"}, `9am - 5pm "Write report" "Gym (high)"`},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := joinArgs(tt.args); got != tt.want {
			t.Fatalf("joinArgs(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParseCommandPrintsRequest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("telegram:\n  token: x\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--config", cfgPath, "parse", "9am-5pm", "write report", `"review PR"`})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v (stderr %s)", err, errOut.String())
	}

	var req planner.ScheduleRequest
	if err := json.Unmarshal(out.Bytes(), &req); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if len(req.Tasks) != 2 || req.Tasks[0].Description != "write report" {
		t.Fatalf("unexpected tasks: %+v", req.Tasks)
	}
	if req.Window.Start != 9*60 || req.Window.End != 17*60 {
		t.Fatalf("unexpected window: %+v", req.Window)
	}
}

func TestParseCommandSingleWordTaskAndPresetWindow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("telegram:\n  token: x\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--config", cfgPath, "parse", "business hours", "Focus", "Gym (high)"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v (stderr %s)", err, errOut.String())
	}

	var req planner.ScheduleRequest
	if err := json.Unmarshal(out.Bytes(), &req); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if len(req.Tasks) != 2 || req.Tasks[0].Description != "Focus" || req.Tasks[1].Priority != planner.PriorityHigh {
		t.Fatalf("unexpected tasks: %+v", req.Tasks)
	}
	if req.Window.Start != 9*60 || req.Window.End != 17*60 {
		t.Fatalf("unexpected window: %+v", req.Window)
	}
}

func TestExplicitMissingConfigFails(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "parse", "9am-5pm", "x"})
	if err := root.Execute(); err == nil {
		t.Fatalf("want error for missing explicit config")
	}
}
