package planner

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ParsedCommand is the CommandParser output before timeframe normalization.
type ParsedCommand struct {
	Timeframe string
	Tasks     []TaskSpec
}

type token struct {
	text   string
	quoted bool
}

// tokenize alternates between unquoted runs and double-quoted segments.
// Quoted text is kept verbatim; an unterminated quote runs to the end of input.
func tokenize(s string) []token {
	var (
		out []token
		buf strings.Builder
		inQ bool
	)
	for _, r := range s {
		if r != '"' {
			buf.WriteRune(r)
			continue
		}
		if inQ {
			out = append(out, token{text: buf.String(), quoted: true})
		} else if run := strings.TrimSpace(buf.String()); run != "" {
			out = append(out, token{text: run})
		}
		buf.Reset()
		inQ = !inQ
	}
	if inQ {
		out = append(out, token{text: buf.String(), quoted: true})
	} else if run := strings.TrimSpace(buf.String()); run != "" {
		out = append(out, token{text: run})
	}
	return out
}

// ParseCommand splits `<timeframe> "<task>" "<task>" ...` into its parts.
// maxTasks <= 0 means MaxTasks.
func ParseCommand(raw string, maxTasks int) (ParsedCommand, error) {
	if maxTasks <= 0 || maxTasks > MaxTasks {
		maxTasks = MaxTasks
	}
	if strings.TrimSpace(raw) == "" {
		return ParsedCommand{}, newParseError(ReasonEmptyInput)
	}

	var (
		timeframe string
		rawTasks  []string
	)
	for _, tok := range tokenize(raw) {
		if tok.quoted {
			rawTasks = append(rawTasks, tok.text)
			continue
		}
		if timeframe == "" {
			timeframe = tok.text
		}
	}
	if timeframe == "" {
		return ParsedCommand{}, newParseError(ReasonNoTimeframe)
	}
	if len(rawTasks) == 0 {
		return ParsedCommand{}, newParseError(ReasonNoTasks)
	}
	if len(rawTasks) > maxTasks {
		return ParsedCommand{}, newParseError(ReasonTooManyTasks)
	}

	tasks := make([]TaskSpec, 0, len(rawTasks))
	for i, rt := range rawTasks {
		t, err := ParseTask(rt)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Index = i
			}
			return ParsedCommand{}, err
		}
		tasks = append(tasks, t)
	}
	return ParsedCommand{Timeframe: timeframe, Tasks: tasks}, nil
}

var reTaskParams = regexp.MustCompile(`^(.*)\(([^()]*)\)\s*$`)

// ParseTask parses `description (param, param, ...)`. Unknown params are ignored.
// The returned error has Index -1; ParseCommand fills in the position.
func ParseTask(raw string) (TaskSpec, error) {
	t := TaskSpec{Priority: PriorityMedium, Type: TypeGeneral}
	desc := strings.TrimSpace(raw)

	if m := reTaskParams.FindStringSubmatch(desc); m != nil {
		desc = strings.TrimSpace(m[1])
		applyTaskParams(&t, strings.Split(m[2], ","))
	}
	if desc == "" {
		return TaskSpec{}, newParseError(ReasonEmptyDescription)
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return TaskSpec{}, newParseError(ReasonLongDescription)
	}
	t.Description = desc
	return t, nil
}

// paramMatcher is one entry of the task-parameter grammar. apply returns false
// when the param does not belong to this vocabulary.
type paramMatcher struct {
	name  string
	apply func(t *TaskSpec, seen map[string]bool, p string) bool
}

var taskParamMatchers = []paramMatcher{
	{name: "priority", apply: func(t *TaskSpec, seen map[string]bool, p string) bool {
		pr, ok := lookupPriority(p)
		if ok && !seen["priority"] {
			t.Priority = pr
		}
		return ok
	}},
	{name: "type", apply: func(t *TaskSpec, seen map[string]bool, p string) bool {
		ty, ok := lookupType(p)
		if ok && !seen["type"] {
			t.Type = ty
		}
		return ok
	}},
	{name: "time", apply: func(t *TaskSpec, seen map[string]bool, p string) bool {
		off, ok := parseClock(strings.TrimPrefix(p, "at "))
		if ok && !seen["time"] {
			t.PreferredOffset = &off
		}
		return ok
	}},
}

// applyTaskParams matches each param against the vocabularies in order.
// The first value seen for a field wins.
func applyTaskParams(t *TaskSpec, params []string) {
	seen := map[string]bool{}
	for _, p := range params {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		for _, m := range taskParamMatchers {
			if m.apply(t, seen, p) {
				seen[m.name] = true
				break
			}
		}
	}
}

func lookupPriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityLow:
		return PriorityLow, true
	}
	return "", false
}

func lookupType(s string) (TaskType, bool) {
	switch TaskType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeGeneral:
		return TypeGeneral, true
	case TypeMeeting:
		return TypeMeeting, true
	case TypeLearning:
		return TypeLearning, true
	}
	return "", false
}
