// Package daemon wires the core components (spec.md §9 design note: "model
// it as an explicit Daemon value passed through the event loop's callback
// context; do not hide it as ambient state") and drives the single
// cooperative event loop described in spec.md §5: one goroutine owns every
// mutation of Model and Scheduler state, fed by a channel of closures from
// whichever goroutine is actually listening on a given external source
// (D-Bus signals, udev monitor events, mixer watch events).
package daemon

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/godbus/dbus/v5"

	"github.com/nokia-audio/alsapolicyd/internal/binder"
	"github.com/nokia-audio/alsapolicyd/internal/dispatcher"
	"github.com/nokia-audio/alsapolicyd/internal/executor"
	"github.com/nokia-audio/alsapolicyd/internal/hwwatch"
	"github.com/nokia-audio/alsapolicyd/internal/mixerio"
	"github.com/nokia-audio/alsapolicyd/internal/model"
	"github.com/nokia-audio/alsapolicyd/internal/policybus"
	"github.com/nokia-audio/alsapolicyd/internal/scheduler"
)

// Config collects everything a Daemon needs. DBusConn may be nil to run
// with no transport (e.g. --list); HW may be nil to run with no hotplug
// source (e.g. tests against mixerio.Fake).
type Config struct {
	Model      *model.Model
	Mixer      mixerio.MixerIO
	DBusConn   *dbus.Conn
	BusOptions policybus.Options
	HW         *hwwatch.Watcher
	Logger     *log.Logger
}

// Daemon owns the Model, Scheduler, Binder, Executor and Dispatcher and
// drives them from one loop goroutine.
type Daemon struct {
	model    *model.Model
	mixer    mixerio.MixerIO
	dbusConn *dbus.Conn
	busOpts  policybus.Options
	hw       *hwwatch.Watcher
	log      *log.Logger

	binder     *binder.Binder
	sched      *scheduler.Scheduler
	exec       *executor.Executor
	dispatcher *dispatcher.Dispatcher

	jobs chan func()
}

// New wires a Daemon's collaborators. The Scheduler's RunFunc closure
// captures exec by forward reference, the same tie-the-knot trick used
// throughout this codebase's tests to break the Scheduler/Executor
// construction cycle (the Scheduler must exist before the Executor it
// calls back into, but the Executor is what the Scheduler calls back
// into).
func New(cfg Config) *Daemon {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	d := &Daemon{
		model:    cfg.Model,
		mixer:    cfg.Mixer,
		dbusConn: cfg.DBusConn,
		busOpts:  cfg.BusOptions,
		hw:       cfg.HW,
		log:      logger.With("component", "daemon"),
		jobs:     make(chan func(), 64),
	}

	var exec *executor.Executor

	d.sched = scheduler.New(func(tail []*model.Rule) {
		d.jobs <- func() { exec.Run(tail) }
	}, logger)

	exec = executor.New(cfg.Mixer, d.sched, logger)
	d.exec = exec

	d.binder = binder.New(cfg.Model, cfg.Mixer, logger)
	d.dispatcher = dispatcher.New(cfg.Model, d.exec, logger)

	return d
}

// Enumerate performs the initial hardware scan: every CardAdded,
// ElementAdded and ControlsAdded the mixer reports for hardware already
// present at startup, binding the Model and applying each card's default
// rule sequence as its controls complete (spec.md §4.2, §4.4).
func (d *Daemon) Enumerate(ctx context.Context) error {
	events, err := d.mixer.Enumerate(ctx)
	if err != nil {
		return err
	}

	for ev := range events {
		switch e := ev.(type) {
		case mixerio.CardAdded:
			d.binder.HandleCardAdded(e)
		case mixerio.ElementAdded:
			d.binder.HandleElementAdded(e)
		case mixerio.ControlsAdded:
			if card := d.binder.HandleControlsAdded(e); card != nil {
				if result := d.exec.ApplyDefaults(card); result.Failed {
					d.log.Warn("one or more default rules failed", "card", card.Num)
				}
			}
		}
	}

	return nil
}

// Run starts the hotplug, transport and mixer-watch sources (each on its
// own goroutine) and then blocks on the single job loop until ctx is
// done. Every job runs to completion before the next is read, so Model
// and Scheduler mutation is always serialized onto this one goroutine
// regardless of which external source produced the job.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Enumerate(ctx); err != nil {
		return err
	}

	d.watchBoundCards(ctx)

	if d.hw != nil {
		go d.runHWWatch(ctx)
	}

	if d.dbusConn != nil {
		go d.runBus(ctx)
	}

	for {
		select {
		case job := <-d.jobs:
			job()
		case <-ctx.Done():
			return nil
		}
	}
}

// watchBoundCards starts one goroutine per already-bound card logging its
// ElementChanged notifications. These are informational only (spec.md
// §6: "not routed into the core except for logging"), so they bypass the
// job queue entirely — nothing they do touches Model or Scheduler state.
func (d *Daemon) watchBoundCards(ctx context.Context) {
	for _, card := range d.model.Cards {
		if !card.Bound() {
			continue
		}

		ch, err := d.mixer.Watch(ctx, card.Num)
		if err != nil {
			d.log.Error("can't watch card for element changes", "card", card.Num, "err", err)

			continue
		}

		go func(num int, ch <-chan mixerio.ElementChanged) {
			for ev := range ch {
				d.log.Info("element changed", "card", num, "numid", ev.NumID)
			}
		}(card.Num, ch)
	}
}

// runHWWatch relays udev card discovery into the job queue. A newly
// hotplugged card only ever gets Bound by this path; spec.md §9 leaves
// the rest of hot-replug (element re-enumeration, default re-apply)
// undefined, and nothing here attempts it.
func (d *Daemon) runHWWatch(ctx context.Context) {
	err := d.hw.Run(ctx, func(card mixerio.CardAdded) {
		select {
		case d.jobs <- func() { d.binder.HandleCardAdded(card) }:
		case <-ctx.Done():
		}
	})
	if err != nil && ctx.Err() == nil {
		d.log.Error("hardware watch stopped", "err", err)
	}
}

// runBus constructs the PolicyBus client with a handler that relays
// decoded actions into the job queue, blocking the bus goroutine until
// the action has actually run so the aggregate status policybus.Client
// reports back to the decision point reflects the real outcome rather
// than "enqueued". Construction happens here, not in New, because the
// handler needs this goroutine's ctx to bound its enqueue/wait selects.
func (d *Daemon) runBus(ctx context.Context) {
	handler := func(a dispatcher.Action) bool {
		resultCh := make(chan bool, 1)

		select {
		case d.jobs <- func() { resultCh <- d.dispatch(a) }:
		case <-ctx.Done():
			return false
		}

		select {
		case ok := <-resultCh:
			return ok
		case <-ctx.Done():
			return false
		}
	}

	client := policybus.NewClient(d.dbusConn, d.busOpts, handler, d.log)

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		d.log.Error("policy bus stopped", "err", err)
	}
}

func (d *Daemon) dispatch(a dispatcher.Action) bool {
	result, err := d.dispatcher.Dispatch(a)
	if err != nil {
		d.log.Error(err.Error())

		return false
	}

	return !result.Failed
}
