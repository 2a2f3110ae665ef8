// Package planner is the chat front-end of the scheduling pipeline: the
// /schedule family of commands and the completion and regenerate buttons.
package planner

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"planbot/internal/config"
	"planbot/internal/eventbus"
	"planbot/internal/planner"
	"planbot/internal/plugin"
	"planbot/internal/storage"
	kit "planbot/internal/transport"
	logx "planbot/pkg/logx"
)

const defaultRequestTimeout = 2 * time.Minute

type Plugin struct {
	plugin.Base

	timeout atomic.Int64 // time.Duration
	loc     atomic.Pointer[time.Location]
	now     func() time.Time
}

func New() *Plugin {
	p := &Plugin{now: time.Now}
	p.loc.Store(time.UTC)
	return p
}

func (p *Plugin) Name() string { return "planner" }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	p.timeout.Store(int64(defaultRequestTimeout))
	if deps.Config != nil {
		return p.OnConfigChange(ctx, deps.Config.Get())
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }

func (p *Plugin) OnConfigChange(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return nil
	}
	d, err := config.ParseDurationOrDefault("planner.request_timeout", cfg.Planner.RequestTimeout, defaultRequestTimeout)
	if err != nil {
		return err
	}
	p.timeout.Store(int64(d))
	if cfg.Storage != nil && cfg.Storage.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Storage.Timezone); err == nil {
			p.loc.Store(loc)
		}
	}
	return nil
}

func (p *Plugin) Commands() []plugin.Command {
	timeout := time.Duration(p.timeout.Load())
	return []plugin.Command{
		{
			Name:        "schedule",
			Aliases:     []string{"plan"},
			Description: "plan a time window with your tasks",
			Usage:       `/schedule 9am-5pm "Write report (high)" "Team sync (meeting, 2pm)"`,
			Timeout:     timeout,
			Handle:      p.cmdSchedule,
		},
		{
			Name:        "schedule_help",
			Description: "examples and supported formats",
			Usage:       "/schedule_help",
			Handle:      p.cmdHelp,
		},
		{
			Name:        "schedules",
			Aliases:     []string{"history"},
			Description: "your recent schedules",
			Usage:       "/schedules [count]",
			Timeout:     10 * time.Second,
			Handle:      p.cmdHistory,
		},
	}
}

func (p *Plugin) Callbacks() []plugin.CallbackRoute {
	return []plugin.CallbackRoute{
		{Prefix: cbDone, Description: "mark a schedule item done", Timeout: 10 * time.Second, Handle: p.cbDone},
		{Prefix: cbRegen, Description: "re-run a saved request", Timeout: time.Duration(p.timeout.Load()), Handle: p.cbRegen},
	}
}

func (p *Plugin) cmdHelp(ctx context.Context, req *plugin.Request) error {
	maxTasks := 0
	if pipe, err := p.Pipeline(); err == nil {
		maxTasks = pipe.Policy().MaxTasks
	}
	if maxTasks <= 0 {
		maxTasks = 20
	}
	_, err := renderHelp(maxTasks).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdSchedule(ctx context.Context, req *plugin.Request) error {
	if strings.TrimSpace(req.RawText) == "" {
		return p.cmdHelp(ctx, req)
	}
	rec, err := p.plan(ctx, req.FromID, req.Chat.ChatID, req.RawText, req.Logger)
	if err != nil {
		return p.replyError(ctx, req, err)
	}
	_, err = renderSchedule(rec).Send(ctx, req.Adapter, req.Chat)
	return err
}

// plan runs the pipeline and persists the outcome when storage is enabled.
// A failed save still returns the record, without an ID.
func (p *Plugin) plan(ctx context.Context, userID, chatID int64, raw string, log logx.Logger) (storage.ScheduleRecord, error) {
	pipe, err := p.Pipeline()
	if err != nil {
		return storage.ScheduleRecord{}, err
	}
	res, err := pipe.Run(ctx, raw)
	if err != nil {
		return storage.ScheduleRecord{}, err
	}
	rec := RecordFromResult(userID, chatID, raw, res)
	rec.CreatedAt = p.now()
	if st := p.Deps.Store; st != nil {
		id, err := st.SaveSchedule(ctx, rec)
		if err != nil {
			log.Warn("schedule not saved", logx.Err(err))
		} else {
			rec.ID = id
		}
	}
	log.Info("schedule generated",
		logx.String("id", rec.ID),
		logx.String("window", res.Request.Window.String()),
		logx.Int("items", len(rec.Items)),
		logx.Bool("degraded", res.Degraded),
		logx.Duration("took", res.Elapsed),
	)
	return rec, nil
}

func (p *Plugin) replyError(ctx context.Context, req *plugin.Request, err error) error {
	text, userErr := userMessage(err)
	_, _ = req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true})
	if userErr {
		return nil
	}
	return err
}

func (p *Plugin) cmdHistory(ctx context.Context, req *plugin.Request) error {
	st := p.Deps.Store
	if st == nil {
		_, err := req.Adapter.SendText(ctx, req.Chat, "History is not enabled on this bot.", nil)
		return err
	}
	limit := 5
	if len(req.Args) > 0 {
		if n, err := strconv.Atoi(req.Args[0]); err == nil && n > 0 {
			limit = min(n, 20)
		}
	}
	recs, err := st.ListSchedules(ctx, req.FromID, limit)
	if err != nil {
		return err
	}
	_, err = renderHistory(recs, p.loc.Load()).Send(ctx, req.Adapter, req.Chat)
	return err
}

// ownedRecord loads a schedule and checks it belongs to the caller.
func (p *Plugin) ownedRecord(ctx context.Context, req *plugin.Request, id string) (storage.ScheduleRecord, bool, error) {
	st := p.Deps.Store
	if st == nil {
		return storage.ScheduleRecord{}, false, nil
	}
	rec, err := st.GetSchedule(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	return rec, rec.UserID == req.FromID, nil
}

func (p *Plugin) cbDone(ctx context.Context, req *plugin.Request, payload string) error {
	id, posStr, ok := strings.Cut(payload, ":")
	pos, err := strconv.Atoi(posStr)
	if !ok || err != nil || pos < 0 {
		return nil
	}
	rec, owned, err := p.ownedRecord(ctx, req, id)
	if err != nil || !owned || pos >= len(rec.Items) {
		return err
	}
	if err := p.Deps.Store.MarkItemDone(ctx, id, pos, p.now()); err != nil {
		return err
	}
	if rec, err = p.Deps.Store.GetSchedule(ctx, id); err != nil {
		return err
	}
	p.Publish(eventbus.ItemCompleted, eventbus.ScheduleEvent{
		UserID:     rec.UserID,
		ScheduleID: rec.ID,
		Items:      rec.DoneCount(),
		Window:     planner.Timeframe{Start: rec.WindowStart, End: rec.WindowEnd}.String(),
	})

	cb := req.Update.Callback
	if cb == nil || cb.MessageID == 0 {
		_, err = renderSchedule(rec).Send(ctx, req.Adapter, req.Chat)
		return err
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	return renderSchedule(rec).Edit(ctx, req.Adapter, ref)
}

func (p *Plugin) cbRegen(ctx context.Context, req *plugin.Request, payload string) error {
	rec, owned, err := p.ownedRecord(ctx, req, payload)
	if err != nil || !owned {
		return err
	}
	next, err := p.plan(ctx, req.FromID, req.Chat.ChatID, rec.RawInput, req.Logger)
	if err != nil {
		return p.replyError(ctx, req, err)
	}
	_, err = renderSchedule(next).Send(ctx, req.Adapter, req.Chat)
	return err
}
