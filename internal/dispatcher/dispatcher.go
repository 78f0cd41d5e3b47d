// Package dispatcher turns the three semantic actions PolicyBus delivers
// (route-sink, route-source, context-set) into Executor invocations,
// deduplicating repeated identical routes (spec.md §4.5).
package dispatcher

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/nokia-audio/alsapolicyd/internal/executor"
	"github.com/nokia-audio/alsapolicyd/internal/model"
)

// Action is the sum type of everything a Dispatcher can process, mirroring
// PolicyBus's three semantic action kinds.
type Action interface {
	isAction()
}

// RouteSinkAction requests the rule sequence bound to an entry's sink
// device.
type RouteSinkAction struct {
	Device string
}

func (RouteSinkAction) isAction() {}

// RouteSourceAction is RouteSinkAction's symmetric counterpart for the
// source slot.
type RouteSourceAction struct {
	Device string
}

func (RouteSourceAction) isAction() {}

// ContextSetAction requests the rule sequence bound to entry
// "<Variable>-<Value>".
type ContextSetAction struct {
	Variable string
	Value    string
}

func (ContextSetAction) isAction() {}

// Dispatcher is single-threaded: the event loop serializes every call, so
// no locking guards the memoized route state (spec.md §5).
type Dispatcher struct {
	model *model.Model
	exec  *executor.Executor
	log   *log.Logger

	lastSink   string
	sinkSet    bool
	lastSource string
	sourceSet  bool
}

// New returns a Dispatcher resolving entries from m and running their rule
// sequences through exec.
func New(m *model.Model, exec *executor.Executor, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}

	return &Dispatcher{model: m, exec: exec, log: logger.With("component", "dispatcher")}
}

// Dispatch routes action to the matching handler. Unknown action types are
// rejected with ErrInvalidArgument (spec.md §4.5).
func (d *Dispatcher) Dispatch(action Action) (executor.Result, error) {
	switch a := action.(type) {
	case RouteSinkAction:
		return d.RouteSink(a.Device), nil
	case RouteSourceAction:
		return d.RouteSource(a.Device), nil
	case ContextSetAction:
		return d.ContextSet(a.Variable, a.Value), nil
	default:
		return executor.Result{}, fmt.Errorf("dispatcher: %w: unrecognized action type %T", ErrInvalidArgument, action)
	}
}

// RouteSink runs Entry(device).Sink, unless device repeats the last
// routed sink device (the Idempotent-route law, spec.md §8). The device is
// memoized before the entry runs, whatever the outcome of that run.
// An unknown entry name is not an error; it resolves to a no-op success.
func (d *Dispatcher) RouteSink(device string) executor.Result {
	if d.sinkSet && d.lastSink == device {
		d.log.Info("route sink deduplicated", "device", device)

		return executor.Result{}
	}

	d.lastSink = device
	d.sinkSet = true

	entry, ok := d.model.Entry(device)
	if !ok {
		d.log.Info("route sink: no matching entry", "device", device)

		return executor.Result{}
	}

	d.log.Info("route sink", "device", device)

	return d.exec.Run(entry.Rules(model.RuleTypeSink))
}

// RouteSource is RouteSink's symmetric counterpart over the source slot
// and the entry's Source rule sequence.
func (d *Dispatcher) RouteSource(device string) executor.Result {
	if d.sourceSet && d.lastSource == device {
		d.log.Info("route source deduplicated", "device", device)

		return executor.Result{}
	}

	d.lastSource = device
	d.sourceSet = true

	entry, ok := d.model.Entry(device)
	if !ok {
		d.log.Info("route source: no matching entry", "device", device)

		return executor.Result{}
	}

	d.log.Info("route source", "device", device)

	return d.exec.Run(entry.Rules(model.RuleTypeSource))
}

// ContextSet runs Entry("<variable>-<value>").Context. No entry by that
// name is a no-op success, not a failure (spec.md §8 scenario 6).
func (d *Dispatcher) ContextSet(variable, value string) executor.Result {
	name := variable + "-" + value

	entry, ok := d.model.Entry(name)
	if !ok {
		d.log.Info("context set: no matching entry", "name", name)

		return executor.Result{}
	}

	d.log.Info("context set", "name", name)

	return d.exec.Run(entry.Rules(model.RuleTypeContext))
}
