package planner

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Prompt is the instruction payload sent to the inference backend.
type Prompt struct {
	System string
	User   string
}

const systemPrompt = "You are a productivity assistant that builds optimized daily schedules. " +
	"Respond with a single JSON object only, no prose and no markdown."

const outputShape = `{
  "schedule": [
    {"task_id": 1, "start_time": "HH:MM", "end_time": "HH:MM", "duration": 60,
     "task": "<task description>", "priority": "high|medium|low",
     "type": "general|meeting|learning", "reasoning": "<short reason>"}
  ],
  "summary": {"total_tasks": 1, "total_duration": 60, "productivity_score": 0.0},
  "recommendations": ["<short tip>"]
}`

// BuildPrompt renders req into a Prompt. It performs no I/O.
func BuildPrompt(req ScheduleRequest, pol Policy) (Prompt, error) {
	if len(req.Tasks) == 0 {
		return Prompt{}, errors.New("build prompt: no tasks")
	}
	pol = pol.WithDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "Create an optimized schedule for the window %s to %s (%d minutes).\n",
		FormatOffset(req.Window.Start), FormatOffset(req.Window.End), req.Window.Duration())

	b.WriteString("\nTasks:\n")
	for i, t := range req.Tasks {
		fmt.Fprintf(&b, "%d. %s (priority: %s, type: %s", i+1, t.Description, t.Priority, t.Type)
		if t.PreferredOffset != nil {
			fmt.Fprintf(&b, ", preferred time: %s", FormatOffset(*t.PreferredOffset))
		}
		b.WriteString(")\n")
	}

	b.WriteString("\nGuidelines:\n")
	b.WriteString("- Schedule high priority tasks first and during peak focus hours; low priority tasks last.\n")
	b.WriteString("- Honor preferred times when they fall inside the window.\n")
	for _, ty := range sortedTypes(pol.TaskTypes) {
		tp := pol.TaskTypes[ty]
		fmt.Fprintf(&b, "- %s tasks: %d-%d minutes, %d minute buffer afterwards", ty, tp.MinDuration, tp.MaxDuration, tp.BufferMinutes)
		if len(tp.PreferredTimes) > 0 {
			fmt.Fprintf(&b, ", best started around %s", strings.Join(tp.PreferredTimes, ", "))
		}
		b.WriteString(".\n")
	}
	fmt.Fprintf(&b, "- Insert a %d minute break after every 90 minutes of continuous work.\n", pol.BreakMinutes)
	b.WriteString("- Every item must start and end inside the window, and no two items may overlap.\n")
	b.WriteString("- Use 24-hour HH:MM times and copy each task description verbatim into \"task\".\n")

	b.WriteString("\nRespond with JSON in exactly this shape:\n")
	b.WriteString(outputShape)
	b.WriteString("\n")

	return Prompt{System: systemPrompt, User: b.String()}, nil
}

func sortedTypes(m map[TaskType]TypePolicy) []TaskType {
	out := make([]TaskType, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
