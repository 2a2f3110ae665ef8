package planner

import (
	"planbot/internal/planner"
	"planbot/internal/storage"
)

// RecordFromResult maps a pipeline outcome to its storage form.
func RecordFromResult(userID, chatID int64, raw string, res planner.Result) storage.ScheduleRecord {
	rec := storage.ScheduleRecord{
		UserID:            userID,
		ChatID:            chatID,
		RawInput:          raw,
		RawTimeframe:      res.Request.RawTimeframe,
		WindowStart:       res.Request.Window.Start,
		WindowEnd:         res.Request.Window.End,
		TotalTasks:        res.Schedule.Summary.TotalTasks,
		TotalDuration:     res.Schedule.Summary.TotalDurationMinutes,
		ProductivityScore: res.Schedule.Summary.ProductivityScore,
		Recommendations:   append([]string(nil), res.Schedule.Recommendations...),
		Diagnostic:        res.Schedule.Diagnostic,
	}
	for i, t := range res.Request.Tasks {
		rec.Tasks = append(rec.Tasks, storage.TaskRecord{
			Position:        i,
			Description:     t.Description,
			Priority:        string(t.Priority),
			Type:            string(t.Type),
			PreferredOffset: t.PreferredOffset,
		})
	}
	for i, it := range res.Schedule.Items {
		rec.Items = append(rec.Items, storage.ItemRecord{
			Position:  i,
			TaskRef:   it.TaskRef,
			TaskIndex: it.TaskIndex,
			Start:     it.Start,
			End:       it.End,
			Priority:  string(it.Priority),
			Type:      string(it.Type),
			Reasoning: it.Reasoning,
		})
	}
	return rec
}
