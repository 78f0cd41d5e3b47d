// Package executor walks a linked sequence of rules for a given entry and
// dispatches each one to the Scheduler or MixerIO as appropriate
// (spec.md §4.4).
package executor

import (
	"github.com/charmbracelet/log"

	"github.com/nokia-audio/alsapolicyd/internal/mixerio"
	"github.com/nokia-audio/alsapolicyd/internal/model"
	"github.com/nokia-audio/alsapolicyd/internal/scheduler"
)

// Result is the aggregate outcome of one Run.
type Result struct {
	// Failed is set if any SetValue write failed, or an OutbandExecute
	// could not be scheduled. Iteration still continues past a write
	// failure; only OutbandExecute terminates the sequence early.
	Failed bool
}

// Executor holds no state between invocations except via the Scheduler
// it is bound to.
type Executor struct {
	mixer mixerio.MixerIO
	sched *scheduler.Scheduler
	log   *log.Logger
}

// New returns an Executor writing through mixer and deferring through
// sched.
func New(mixer mixerio.MixerIO, sched *scheduler.Scheduler, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}

	return &Executor{mixer: mixer, sched: sched, log: logger.With("component", "executor")}
}

// Run iterates rules in order, dispatching each:
//
//   - SetValue writes the resolved value if the element is bound;
//     failures are recorded but iteration continues.
//   - OutbandExecute delegates the remaining rules to the Scheduler as a
//     tail and terminates iteration immediately.
//   - OutbandCancel and Suspend delegate to the Scheduler and continue.
func (ex *Executor) Run(rules []*model.Rule) Result {
	var result Result

	for i, rule := range rules {
		switch action := rule.Action.(type) {
		case *model.SetValueAction:
			if err := ex.setValue(action); err != nil {
				result.Failed = true
			}

		case *model.OutbandExecuteAction:
			tail := rules[i+1:]
			if err := ex.sched.OutbandExecute(action.DelayMS, tail); err != nil {
				ex.log.Error(err.Error(), "kind", "ScheduleBusy", "line", rule.Line)
				result.Failed = true
			}

			return result

		case *model.OutbandCancelAction:
			ex.sched.OutbandCancel()

		case *model.SuspendAction:
			ex.sched.Suspend(action.DelayUS)
		}
	}

	return result
}

// ApplyDefaults runs card's default-rule sequence (spec.md §4.4), invoked
// by the daemon loop when a ControlsAdded event completes a card's
// hardware enumeration.
func (ex *Executor) ApplyDefaults(card *model.Card) Result {
	return ex.Run(card.Defaults)
}

func (ex *Executor) setValue(action *model.SetValueAction) error {
	if !action.Element.Bound() {
		return nil
	}

	err := ex.mixer.Set(action.Card.Num, action.Element.NumID, action.Value)
	if err != nil {
		ex.log.Error(err.Error(), "kind", "ExecutionError", "card", action.Card.Num, "numid", action.Element.NumID, "value", action.Value)

		return err
	}

	return nil
}
