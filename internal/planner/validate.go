package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

type wireItem struct {
	TaskID    any    `json:"task_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Duration  any    `json:"duration"`
	Task      string `json:"task"`
	Priority  string `json:"priority"`
	Type      string `json:"type"`
	Reasoning string `json:"reasoning"`
}

type wireSummary struct {
	ProductivityScore *float64 `json:"productivity_score"`
}

// ValidateReply parses the backend's raw text into a GeneratedSchedule.
// Any structural problem is reported as a *ShapeError.
func ValidateReply(raw string, req ScheduleRequest) (GeneratedSchedule, error) {
	text := stripCodeFences(raw)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &top); err != nil {
		return GeneratedSchedule{}, &ShapeError{Reason: "reply is not a JSON object", Err: err}
	}
	rawItems, ok := top["schedule"]
	if !ok {
		return GeneratedSchedule{}, &ShapeError{Reason: "missing schedule array"}
	}
	var items []wireItem
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return GeneratedSchedule{}, &ShapeError{Reason: "schedule is not an array of items", Err: err}
	}
	if len(items) == 0 {
		return GeneratedSchedule{}, &ShapeError{Reason: "schedule array is empty"}
	}

	byLabel := make(map[string]int, len(req.Tasks))
	for i, t := range req.Tasks {
		key := strings.ToLower(t.Description)
		if _, dup := byLabel[key]; !dup {
			byLabel[key] = i
		}
	}

	out := GeneratedSchedule{Items: make([]ScheduledItem, 0, len(items))}
	total := 0
	for i, it := range items {
		si, err := mapItem(it, req, byLabel)
		if err != nil {
			return GeneratedSchedule{}, &ShapeError{Reason: fmt.Sprintf("item %d", i+1), Err: err}
		}
		total += si.Duration
		out.Items = append(out.Items, si)
	}

	// Counts always come from the items; only the score is taken from the backend.
	out.Summary = Summary{TotalTasks: len(out.Items), TotalDurationMinutes: total}
	if rs, ok := top["summary"]; ok {
		var ws wireSummary
		if json.Unmarshal(rs, &ws) == nil && ws.ProductivityScore != nil {
			if sc := *ws.ProductivityScore; sc >= 0 && sc <= 10 {
				out.Summary.ProductivityScore = &sc
			}
		}
	}
	if rr, ok := top["recommendations"]; ok {
		var recs []string
		if json.Unmarshal(rr, &recs) == nil {
			for _, r := range recs {
				if r = strings.TrimSpace(r); r != "" {
					out.Recommendations = append(out.Recommendations, r)
				}
			}
		}
	}
	return out, nil
}

func mapItem(it wireItem, req ScheduleRequest, byLabel map[string]int) (ScheduledItem, error) {
	label := strings.TrimSpace(it.Task)
	if label == "" {
		return ScheduledItem{}, fmt.Errorf("missing task label")
	}
	if strings.TrimSpace(it.StartTime) == "" || strings.TrimSpace(it.EndTime) == "" {
		return ScheduledItem{}, fmt.Errorf("missing start_time or end_time")
	}
	start, ok := parseClock(it.StartTime)
	if !ok {
		return ScheduledItem{}, fmt.Errorf("bad start_time %q", it.StartTime)
	}
	end, ok := parseClock(it.EndTime)
	if !ok {
		return ScheduledItem{}, fmt.Errorf("bad end_time %q", it.EndTime)
	}
	if end <= start {
		return ScheduledItem{}, fmt.Errorf("end_time %s is not after start_time %s", it.EndTime, it.StartTime)
	}
	if !req.Window.Contains(start, end) {
		return ScheduledItem{}, fmt.Errorf("%s-%s is outside the window %s", it.StartTime, it.EndTime, req.Window)
	}

	si := ScheduledItem{
		TaskRef:   label,
		TaskIndex: -1,
		Start:     start,
		End:       end,
		Duration:  end - start,
		Reasoning: strings.TrimSpace(it.Reasoning),
	}
	if idx, ok := byLabel[strings.ToLower(label)]; ok {
		si.TaskIndex = idx
	} else if n, ok := it.TaskID.(float64); ok && n >= 1 && int(n) <= len(req.Tasks) && float64(int(n)) == n {
		si.TaskIndex = int(n) - 1
	}

	si.Priority, si.Type = PriorityMedium, TypeGeneral
	if si.TaskIndex >= 0 {
		si.Priority, si.Type = req.Tasks[si.TaskIndex].Priority, req.Tasks[si.TaskIndex].Type
	}
	if p, ok := lookupPriority(it.Priority); ok {
		si.Priority = p
	}
	if t, ok := lookupType(it.Type); ok {
		si.Type = t
	}
	return si, nil
}

// stripCodeFences returns the body of the first ``` or ```json fenced block,
// or the trimmed content when there is no fence.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	open := strings.Index(trimmed, "```")
	if open < 0 {
		return trimmed
	}
	body := trimmed[open+3:]
	// drop the language tag on the opening line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	} else {
		body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
