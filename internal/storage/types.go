package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("schedule not found")
)

// Config configures storage. Driver "" or "none" disables persistence.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ScheduleRecord is one request together with the schedule produced for it.
type ScheduleRecord struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	ChatID    int64     `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`

	RawInput     string `json:"raw_input"`
	RawTimeframe string `json:"raw_timeframe"`
	WindowStart  int    `json:"window_start"`
	WindowEnd    int    `json:"window_end"`

	Tasks []TaskRecord `json:"tasks"`
	Items []ItemRecord `json:"items"`

	TotalTasks        int      `json:"total_tasks"`
	TotalDuration     int      `json:"total_duration"`
	ProductivityScore *float64 `json:"productivity_score,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
	Diagnostic        string   `json:"diagnostic,omitempty"`
}

// Degraded reports whether the stored schedule came from the fallback path.
func (r ScheduleRecord) Degraded() bool { return r.Diagnostic != "" }

// DoneCount returns how many items have been marked complete.
func (r ScheduleRecord) DoneCount() int {
	n := 0
	for _, it := range r.Items {
		if it.DoneAt != nil {
			n++
		}
	}
	return n
}

type TaskRecord struct {
	Position        int    `json:"position"`
	Description     string `json:"description"`
	Priority        string `json:"priority"`
	Type            string `json:"type"`
	PreferredOffset *int   `json:"preferred_offset,omitempty"`
}

type ItemRecord struct {
	Position  int        `json:"position"`
	TaskRef   string     `json:"task"`
	TaskIndex int        `json:"task_index"`
	Start     int        `json:"start"`
	End       int        `json:"end"`
	Priority  string     `json:"priority,omitempty"`
	Type      string     `json:"type,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}

func cloneRecord(r ScheduleRecord) ScheduleRecord {
	out := r
	out.Tasks = append([]TaskRecord(nil), r.Tasks...)
	out.Items = append([]ItemRecord(nil), r.Items...)
	out.Recommendations = append([]string(nil), r.Recommendations...)
	for i := range out.Items {
		if r.Items[i].DoneAt != nil {
			at := *r.Items[i].DoneAt
			out.Items[i].DoneAt = &at
		}
	}
	return out
}
