package planner

import (
	"reflect"
	"strings"
	"testing"
)

func testRequest() ScheduleRequest {
	return ScheduleRequest{
		RawTimeframe: "9am-5pm",
		Window:       Timeframe{Start: 540, End: 1020},
		Tasks: []TaskSpec{
			{Description: "Review code", Priority: PriorityHigh, Type: TypeGeneral},
			{Description: "Team meeting", Priority: PriorityMedium, Type: TypeMeeting},
		},
	}
}

const validReply = `{
  "schedule": [
    {"task_id": 1, "start_time": "09:00", "end_time": "10:30", "duration": 90,
     "task": "Review code", "priority": "high", "type": "general", "reasoning": "peak focus"},
    {"task_id": 2, "start_time": "10:45", "end_time": "11:30", "duration": 45,
     "task": "Team meeting", "priority": "medium", "type": "meeting"}
  ],
  "summary": {"total_tasks": 2, "total_duration": 135, "productivity_score": 8.5},
  "recommendations": ["Take a walk after lunch", "  "]
}`

func TestValidateReply(t *testing.T) {
	t.Parallel()

	got, err := ValidateReply(validReply, testRequest())
	if err != nil {
		t.Fatalf("ValidateReply: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items=%d", len(got.Items))
	}
	first := got.Items[0]
	if first.TaskRef != "Review code" || first.TaskIndex != 0 || first.Start != 540 || first.End != 630 || first.Duration != 90 || first.Reasoning != "peak focus" {
		t.Fatalf("first=%+v", first)
	}
	if got.Items[1].TaskIndex != 1 || got.Items[1].Type != TypeMeeting {
		t.Fatalf("second=%+v", got.Items[1])
	}
	if got.Summary.TotalTasks != 2 || got.Summary.TotalDurationMinutes != 135 {
		t.Fatalf("summary=%+v", got.Summary)
	}
	if got.Summary.ProductivityScore == nil || *got.Summary.ProductivityScore != 8.5 {
		t.Fatalf("productivity=%v", got.Summary.ProductivityScore)
	}
	if len(got.Recommendations) != 1 {
		t.Fatalf("recommendations=%q", got.Recommendations)
	}
	if got.Degraded() {
		t.Fatalf("validated schedule must not be degraded")
	}
}

func TestValidateReplyStripsFences(t *testing.T) {
	t.Parallel()

	req := testRequest()
	plain, err := ValidateReply(validReply, req)
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	for _, fenced := range []string{
		"```json\n" + validReply + "\n```",
		"```\n" + validReply + "\n```",
		"  ```JSON\n" + validReply + "```  ",
		"Here is your schedule:\n```json\n" + validReply + "\n```\nLet me know if you need changes.",
	} {
		got, err := ValidateReply(fenced, req)
		if err != nil {
			t.Fatalf("fenced: %v", err)
		}
		if !reflect.DeepEqual(got, plain) {
			t.Fatalf("fenced reply changed content:\n%+v\n%+v", got, plain)
		}
	}
}

func TestValidateReplySummaryRecomputed(t *testing.T) {
	t.Parallel()

	reply := `{"schedule":[
	  {"task":"review code","start_time":"9:00","end_time":"10:00"},
	  {"task":"Something else","task_id":2,"start_time":"1:00 PM","end_time":"2:30 PM"}
	]}`
	got, err := ValidateReply(reply, testRequest())
	if err != nil {
		t.Fatalf("ValidateReply: %v", err)
	}
	if got.Summary.TotalTasks != 2 || got.Summary.TotalDurationMinutes != 150 {
		t.Fatalf("summary=%+v", got.Summary)
	}
	if got.Items[0].TaskIndex != 0 || got.Items[0].Priority != PriorityHigh {
		t.Fatalf("label match failed: %+v", got.Items[0])
	}
	if got.Items[1].TaskIndex != 1 || got.Items[1].Start != 780 {
		t.Fatalf("task_id match failed: %+v", got.Items[1])
	}
	if got.Recommendations != nil {
		t.Fatalf("recommendations=%q", got.Recommendations)
	}
}

func TestValidateReplyIgnoresBackendCounts(t *testing.T) {
	t.Parallel()

	reply := `{"schedule":[{"task":"Review code","start_time":"09:00","end_time":"10:00"}],
	  "summary":{"total_tasks":7,"total_duration":999,"productivity_score":7}}`
	got, err := ValidateReply(reply, testRequest())
	if err != nil {
		t.Fatalf("ValidateReply: %v", err)
	}
	if got.Summary.TotalTasks != 1 || got.Summary.TotalDurationMinutes != 60 {
		t.Fatalf("summary must match items: %+v", got.Summary)
	}
	if got.Summary.ProductivityScore == nil || *got.Summary.ProductivityScore != 7 {
		t.Fatalf("productivity=%v", got.Summary.ProductivityScore)
	}

	outOfRange := `{"schedule":[{"task":"Review code","start_time":"09:00","end_time":"10:00"}],"summary":{"productivity_score":42}}`
	got, err = ValidateReply(outOfRange, testRequest())
	if err != nil {
		t.Fatalf("ValidateReply: %v", err)
	}
	if got.Summary.ProductivityScore != nil {
		t.Fatalf("out of range score kept: %v", *got.Summary.ProductivityScore)
	}
}

func TestValidateReplyShapeFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":         "not json",
		"array":            `[1,2,3]`,
		"no schedule":      `{"plan":[]}`,
		"schedule object":  `{"schedule":{"task":"x"}}`,
		"empty schedule":   `{"schedule":[]}`,
		"missing task":     `{"schedule":[{"start_time":"09:00","end_time":"10:00"}]}`,
		"missing start":    `{"schedule":[{"task":"Review code","end_time":"10:00"}]}`,
		"bad time":         `{"schedule":[{"task":"Review code","start_time":"nine","end_time":"10:00"}]}`,
		"end before start": `{"schedule":[{"task":"Review code","start_time":"11:00","end_time":"10:00"}]}`,
		"outside window":   `{"schedule":[{"task":"Review code","start_time":"08:00","end_time":"10:00"}]}`,
		"after window":     `{"schedule":[{"task":"Review code","start_time":"16:30","end_time":"17:30"}]}`,
	}
	for name, reply := range cases {
		reply := reply
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ValidateReply(reply, testRequest())
			if !IsShapeError(err) {
				t.Fatalf("expected ShapeError, got %v", err)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"{}":                   "{}",
		"```json\n{}\n```":     "{}",
		"```\n{\"a\":1}\n```":  `{"a":1}`,
		"  {\"a\":1}  ":        `{"a":1}`,
		"```json{\"a\":1}```": `{"a":1}`,
		"Sure:\n```json\n{\"a\":1}\n```\nthanks": `{"a":1}`,
		"```json\n{\"a\":1}\n```\n```\n{\"b\":2}\n```": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFences(in); got != want {
			t.Fatalf("stripCodeFences(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFallback(t *testing.T) {
	t.Parallel()

	req := testRequest()
	got := Fallback(req, &ShapeError{Reason: "reply is not a JSON object"})
	if len(got.Items) != 1 {
		t.Fatalf("items=%d", len(got.Items))
	}
	it := got.Items[0]
	if it.Start != req.Window.Start || it.End != req.Window.End || it.Duration != req.Window.Duration() || it.TaskRef != FallbackTaskLabel {
		t.Fatalf("item=%+v", it)
	}
	if got.Summary.TotalTasks != 1 || got.Summary.TotalDurationMinutes != 480 {
		t.Fatalf("summary=%+v", got.Summary)
	}
	if !got.Degraded() || !strings.Contains(got.Diagnostic, "not a JSON object") {
		t.Fatalf("diagnostic=%q", got.Diagnostic)
	}
	if len(got.Recommendations) == 0 {
		t.Fatalf("expected recommendations")
	}
	if !reflect.DeepEqual(got, Fallback(req, &ShapeError{Reason: "reply is not a JSON object"})) {
		t.Fatalf("fallback must be deterministic")
	}
	if nilCause := Fallback(req, nil); nilCause.Diagnostic == "" {
		t.Fatalf("diagnostic must be non-empty without a cause")
	}
}
