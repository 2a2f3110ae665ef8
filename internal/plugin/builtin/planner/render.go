package planner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"planbot/internal/inference"
	"planbot/internal/planner"
	"planbot/internal/storage"
	"planbot/pkg/tgui"
)

const (
	cbDone  = "done"
	cbRegen = "regen"
)

var priorityMark = map[string]string{
	string(planner.PriorityHigh):   "🔴",
	string(planner.PriorityMedium): "🟡",
	string(planner.PriorityLow):    "🟢",
}

// renderSchedule builds the schedule card. Buttons are attached only for
// persisted records since callbacks address them by ID.
func renderSchedule(rec storage.ScheduleRecord) tgui.Message {
	win := planner.Timeframe{Start: rec.WindowStart, End: rec.WindowEnd}
	b := tgui.New().Title("📅", "Your schedule "+win.String())
	if rec.Degraded() {
		b.HTML(tgui.I("⚠️ The assistant reply was unusable, so this is a generic plan."))
	}
	b.Blank()

	for _, it := range rec.Items {
		span := planner.FormatOffset(it.Start) + "-" + planner.FormatOffset(it.End)
		label := tgui.Code(span) + " " + tgui.Esc(it.TaskRef)
		if it.DoneAt != nil {
			label = "✅ " + tgui.S(span+" "+it.TaskRef)
		} else if m := priorityMark[it.Priority]; m != "" {
			label = tgui.H(m+" ") + label
		}
		b.HTML(label)
		if r := strings.TrimSpace(it.Reasoning); r != "" && it.DoneAt == nil {
			b.HTML("    " + tgui.I(tgui.TruncRunes(r, 160)))
		}
	}

	b.Blank()
	summary := fmt.Sprintf("%d tasks · %d min", rec.TotalTasks, rec.TotalDuration)
	if rec.ProductivityScore != nil {
		summary += " · score " + strconv.FormatFloat(*rec.ProductivityScore, 'f', 1, 64)
	}
	if done := rec.DoneCount(); done > 0 {
		summary += fmt.Sprintf(" · %d/%d done", done, len(rec.Items))
	}
	b.KV("Summary", summary)

	if len(rec.Recommendations) > 0 {
		b.Blank().Section("Recommendations").Bullets(rec.Recommendations...)
	}

	if rec.ID != "" {
		b.Inline(scheduleKeyboard(rec))
	}
	return b.Build()
}

func scheduleKeyboard(rec storage.ScheduleRecord) *tgui.Inline {
	var btns []tele.Btn
	for _, it := range rec.Items {
		if it.DoneAt != nil {
			continue
		}
		data, err := tgui.Data(cbDone, rec.ID, strconv.Itoa(it.Position))
		if err != nil {
			continue
		}
		btns = append(btns, tgui.Btn("✅ "+strconv.Itoa(it.Position+1), data))
	}
	kb := tgui.Grid(4, btns)
	if data, err := tgui.Data(cbRegen, rec.ID); err == nil {
		kb.Row(tgui.Btn("🔄 Regenerate", data))
	}
	return kb
}

func renderHistory(recs []storage.ScheduleRecord, loc *time.Location) tgui.Message {
	b := tgui.New().Title("🗂", "Recent schedules")
	if len(recs) == 0 {
		return b.Line("No saved schedules yet. Try /schedule_help.").Build()
	}
	for _, r := range recs {
		win := planner.Timeframe{Start: r.WindowStart, End: r.WindowEnd}
		line := fmt.Sprintf("%s · %s · %d/%d done",
			r.CreatedAt.In(loc).Format("Jan 02 15:04"), win, r.DoneCount(), len(r.Items))
		if r.Degraded() {
			line += " · generic"
		}
		b.Line("• " + line)
	}
	return b.Build()
}

const helpText = `Plan a day from a time window and quoted tasks:

/schedule 9am-5pm "Write report (high)" "Team sync (meeting, 14:00)" "Read paper (learning, low)"

Time windows: 9am-5pm, 9:30am-1pm, 09:00-17:30, 9am to 5pm, morning, afternoon, evening, workday.
Task hints in parentheses: priority high|medium|low, type general|meeting|learning, a preferred time like 14:00 or 2pm.`

func renderHelp(maxTasks int) tgui.Message {
	return tgui.New().Title("ℹ️", "How to use /schedule").
		Line(helpText).
		Blank().
		Line(fmt.Sprintf("Up to %d tasks per request. The window must be between 1 and 16 hours.", maxTasks)).
		Build()
}

// userMessage turns a pipeline error into text for the chat. The bool is
// false for failures worth logging as request errors.
func userMessage(err error) (string, bool) {
	var (
		pe *planner.ParseError
		te *planner.TimeframeError
		su *inference.ServiceUnavailableError
		se *inference.ServiceError
	)
	switch {
	case errors.As(err, &pe):
		msg := "I could not read that request: " + pe.Reason
		if pe.Index >= 0 {
			msg += fmt.Sprintf(" (task %d)", pe.Index+1)
		}
		return msg + ". See /schedule_help.", true
	case errors.As(err, &te):
		switch {
		case errors.Is(err, planner.ErrTimeframeOrder):
			return "The end time must be after the start time (" + te.Input + ").", true
		case errors.Is(err, planner.ErrTimeframeTooShort):
			return "That window is too short. Give me at least one hour.", true
		case errors.Is(err, planner.ErrTimeframeTooLong):
			return "That window is too long. Keep it to 16 hours or less.", true
		default:
			return "I do not understand the time window \"" + te.Input + "\". Try 9am-5pm or 09:00-17:00.", true
		}
	case errors.As(err, &su):
		return "The planning service is unavailable right now. Please try again in a minute.", false
	case errors.As(err, &se):
		return "The planning service rejected this request.", false
	case errors.Is(err, context.DeadlineExceeded):
		return "Planning took too long. Please try again.", false
	default:
		return "Something went wrong while planning. Please try again.", false
	}
}
