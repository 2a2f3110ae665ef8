package planner

import "fmt"

// FallbackTaskLabel names the single placeholder item of a fallback schedule.
const FallbackTaskLabel = "Work on your tasks"

// Fallback synthesizes a deterministic schedule covering the whole window.
// cause is recorded in the diagnostic; it may be nil.
func Fallback(req ScheduleRequest, cause error) GeneratedSchedule {
	diag := "the scheduling backend returned output that could not be parsed; showing a generic plan"
	if cause != nil {
		diag = fmt.Sprintf("%s (%v)", diag, cause)
	}
	return GeneratedSchedule{
		Items: []ScheduledItem{{
			TaskRef:   FallbackTaskLabel,
			TaskIndex: -1,
			Start:     req.Window.Start,
			End:       req.Window.End,
			Duration:  req.Window.Duration(),
			Priority:  PriorityMedium,
			Type:      TypeGeneral,
			Reasoning: "placeholder block spanning the requested window",
		}},
		Summary: Summary{TotalTasks: 1, TotalDurationMinutes: req.Window.Duration()},
		Recommendations: []string{
			"Try rephrasing your tasks with shorter, more specific descriptions.",
			"Add priority and type hints, e.g. \"Write report (high, general)\".",
			"Run the command again; the scheduling service may have been busy.",
		},
		Diagnostic: diag,
	}
}
