package planner

import (
	"errors"
	"fmt"
)

// Hard bounds. Policy values may tighten these but never widen them.
const (
	MaxTasks             = 20
	MinWindowMinutes     = 60
	MaxWindowMinutes     = 960
	MaxDescriptionLength = 200
)

// TypePolicy describes timing preferences for one task type.
type TypePolicy struct {
	MinDuration    int      `json:"min_duration"`
	MaxDuration    int      `json:"max_duration"`
	BufferMinutes  int      `json:"buffer_time"`
	PreferredTimes []string `json:"preferred_times,omitempty"`
}

// Policy carries the tunable scheduling guidance.
type Policy struct {
	MaxTasks     int
	BreakMinutes int
	TaskTypes    map[TaskType]TypePolicy
}

func DefaultPolicy() Policy {
	return Policy{
		MaxTasks:     MaxTasks,
		BreakMinutes: 15,
		TaskTypes: map[TaskType]TypePolicy{
			TypeMeeting:  {MinDuration: 15, MaxDuration: 120, BufferMinutes: 5},
			TypeLearning: {MinDuration: 30, MaxDuration: 180, BufferMinutes: 10, PreferredTimes: []string{"09:00", "10:00", "14:00"}},
			TypeGeneral:  {MinDuration: 15, MaxDuration: 240, BufferMinutes: 5},
		},
	}
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxTasks <= 0 {
		p.MaxTasks = d.MaxTasks
	}
	if p.BreakMinutes <= 0 {
		p.BreakMinutes = d.BreakMinutes
	}
	if len(p.TaskTypes) == 0 {
		p.TaskTypes = d.TaskTypes
	} else {
		merged := make(map[TaskType]TypePolicy, len(d.TaskTypes))
		for k, v := range d.TaskTypes {
			merged[k] = v
		}
		for k, v := range p.TaskTypes {
			merged[k] = v
		}
		p.TaskTypes = merged
	}
	return p
}

func (p Policy) Validate() error {
	if p.MaxTasks < 0 || p.MaxTasks > MaxTasks {
		return fmt.Errorf("max_tasks must be within 0..%d (0 uses the default)", MaxTasks)
	}
	if p.BreakMinutes < 0 || p.BreakMinutes > 120 {
		return errors.New("break_minutes must be within 0..120")
	}
	for t, tp := range p.TaskTypes {
		if _, ok := lookupType(string(t)); !ok {
			return fmt.Errorf("task_types: unknown type %q", t)
		}
		if tp.MinDuration < 0 || tp.MaxDuration < 0 || (tp.MaxDuration > 0 && tp.MinDuration > tp.MaxDuration) {
			return fmt.Errorf("task_types.%s: invalid duration bounds", t)
		}
		for _, pt := range tp.PreferredTimes {
			if _, ok := parseClock(pt); !ok {
				return fmt.Errorf("task_types.%s: invalid preferred time %q", t, pt)
			}
		}
	}
	return nil
}
