package planner

import (
	"fmt"
	"strings"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for display and prompt guidance (lower is more urgent).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

type TaskType string

const (
	TypeGeneral  TaskType = "general"
	TypeMeeting  TaskType = "meeting"
	TypeLearning TaskType = "learning"
)

// TaskSpec is one parsed task. Position in ScheduleRequest.Tasks is its identity.
type TaskSpec struct {
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Type        TaskType `json:"type"`
	// PreferredOffset is minutes since midnight, nil when not given.
	PreferredOffset *int `json:"preferred_offset,omitempty"`
}

// Timeframe is a working window in minutes since midnight.
type Timeframe struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (t Timeframe) Duration() int { return t.End - t.Start }

// Contains reports whether [start,end] lies inside the window.
func (t Timeframe) Contains(start, end int) bool {
	return start >= t.Start && end <= t.End
}

// String renders the canonical HH:MM-HH:MM form.
func (t Timeframe) String() string {
	return FormatOffset(t.Start) + "-" + FormatOffset(t.End)
}

// FormatOffset renders minutes since midnight as HH:MM.
func FormatOffset(off int) string {
	return fmt.Sprintf("%02d:%02d", off/60, off%60)
}

// ScheduleRequest is the validated unit of work handed to the inference stage.
type ScheduleRequest struct {
	RawTimeframe string     `json:"raw_timeframe"`
	Window       Timeframe  `json:"window"`
	Tasks        []TaskSpec `json:"tasks"`
}

type ScheduledItem struct {
	// TaskRef is the task label as returned by the backend.
	TaskRef string `json:"task"`
	// TaskIndex points into ScheduleRequest.Tasks, -1 when the label matches no task.
	TaskIndex int      `json:"task_index"`
	Start     int      `json:"start"`
	End       int      `json:"end"`
	Duration  int      `json:"duration"`
	Priority  Priority `json:"priority,omitempty"`
	Type      TaskType `json:"type,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
}

type Summary struct {
	TotalTasks           int      `json:"total_tasks"`
	TotalDurationMinutes int      `json:"total_duration"`
	ProductivityScore    *float64 `json:"productivity_score,omitempty"`
}

// GeneratedSchedule is the final output of one request. Diagnostic is only set
// when the schedule was synthesized by Fallback.
type GeneratedSchedule struct {
	Items           []ScheduledItem `json:"schedule"`
	Summary         Summary         `json:"summary"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Diagnostic      string          `json:"diagnostic,omitempty"`
}

func (g GeneratedSchedule) Degraded() bool { return strings.TrimSpace(g.Diagnostic) != "" }
