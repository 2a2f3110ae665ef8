package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"planbot/internal/eventbus"
	"planbot/internal/inference"
	logx "planbot/pkg/logx"
)

// Inferer is the text-in/text-out backend. *inference.Client satisfies it.
type Inferer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Deps struct {
	Policy  Policy
	Inferer Inferer
	Logger  logx.Logger
	Metrics *Metrics
	Bus     eventbus.Bus
	Now     func() time.Time
}

// Result is one pipeline outcome. Schedule is always well-formed when err is nil.
type Result struct {
	Request  ScheduleRequest
	Schedule GeneratedSchedule
	Degraded bool
	Elapsed  time.Duration
}

// Pipeline wires parser, normalizer, prompt builder, backend and validator.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	pol     Policy
	inf     Inferer
	log     logx.Logger
	metrics *Metrics
	bus     eventbus.Bus
	now     func() time.Time
}

func NewPipeline(d Deps) (*Pipeline, error) {
	if d.Inferer == nil {
		return nil, errors.New("planner: inferer is required")
	}
	pol := d.Policy.WithDefaults()
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := d.Bus
	if bus == nil {
		bus = eventbus.Nop{}
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		pol:     pol,
		inf:     d.Inferer,
		log:     log.With(logx.String("comp", "planner")),
		metrics: d.Metrics,
		bus:     bus,
		now:     now,
	}, nil
}

func (p *Pipeline) Policy() Policy { return p.pol }

// Prepare parses and normalizes raw input without touching the backend.
func (p *Pipeline) Prepare(raw string) (ScheduleRequest, error) {
	cmd, err := ParseCommand(raw, p.pol.MaxTasks)
	if err != nil {
		return ScheduleRequest{}, err
	}
	win, err := NormalizeTimeframe(cmd.Timeframe)
	if err != nil {
		return ScheduleRequest{}, err
	}
	return ScheduleRequest{RawTimeframe: cmd.Timeframe, Window: win, Tasks: cmd.Tasks}, nil
}

// Run executes the full pipeline for one raw command.
func (p *Pipeline) Run(ctx context.Context, raw string) (Result, error) {
	req, err := p.Prepare(raw)
	if err != nil {
		p.metrics.outcome(outcomeRejected)
		p.bus.Publish(eventbus.Event{Type: eventbus.ScheduleRejected, Data: eventbus.ScheduleEvent{Cause: err.Error()}})
		p.log.Debug("request rejected", logx.Err(err))
		return Result{}, err
	}
	return p.Generate(ctx, req)
}

// Generate runs the backend stages for an already prepared request. Reply
// shape failures are absorbed into a Fallback schedule; transport failures
// are returned.
func (p *Pipeline) Generate(ctx context.Context, req ScheduleRequest) (Result, error) {
	start := p.now()
	res := Result{Request: req}

	prompt, err := BuildPrompt(req, p.pol)
	if err != nil {
		p.metrics.outcome(outcomeRejected)
		return Result{}, err
	}

	reply, err := p.inf.Complete(ctx, prompt.System, prompt.User)
	switch {
	case err == nil:
		res.Schedule, err = ValidateReply(reply, req)
		if err != nil {
			res.Schedule = Fallback(req, err)
		}
	case errors.Is(err, inference.ErrMalformedReply):
		res.Schedule = Fallback(req, &ShapeError{Reason: "empty reply envelope", Err: err})
	default:
		p.metrics.outcome(outcomeFailed)
		p.log.Warn("inference failed",
			logx.String("window", req.Window.String()),
			logx.Int("tasks", len(req.Tasks)),
			logx.Err(err),
		)
		return Result{}, err
	}

	res.Degraded = res.Schedule.Degraded()
	res.Elapsed = p.now().Sub(start)
	p.metrics.observeRun(res.Elapsed)

	ev := eventbus.ScheduleEvent{Items: len(res.Schedule.Items), Window: req.Window.String()}
	if res.Degraded {
		p.metrics.outcome(outcomeDegraded)
		ev.Cause = res.Schedule.Diagnostic
		p.bus.Publish(eventbus.Event{Type: eventbus.ScheduleDegraded, Data: ev})
		p.log.Warn("schedule degraded to fallback",
			logx.String("window", req.Window.String()),
			logx.String("diagnostic", res.Schedule.Diagnostic),
		)
	} else {
		p.metrics.outcome(outcomeOK)
		p.bus.Publish(eventbus.Event{Type: eventbus.ScheduleGenerated, Data: ev})
		p.log.Info("schedule generated",
			logx.String("window", req.Window.String()),
			logx.Int("tasks", len(req.Tasks)),
			logx.Int("items", len(res.Schedule.Items)),
			logx.Duration("elapsed", res.Elapsed),
		)
	}
	return res, nil
}
