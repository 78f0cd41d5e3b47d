// Package mixerio defines the consumed interface to the kernel mixer
// control subsystem (named MixerIO in the design) and the event/value
// shapes the Binder and Executor see through it. The real binding onto a
// kernel control API is deliberately out of scope (see SPEC_FULL.md §4);
// this package only carries the contract plus an in-memory Fake used by
// tests and by internal/hwwatch's hotplug source.
package mixerio

import (
	"context"

	"github.com/nokia-audio/alsapolicyd/internal/model"
)

// Event is the sum type of everything enumerate()/watch() can deliver.
type Event interface {
	isEvent()
}

// CardAdded announces a hardware card's appearance.
type CardAdded struct {
	Num  int
	ID   string
	Name string
}

func (CardAdded) isEvent() {}

// ControlsAdded signals that hardware element enumeration for Num is
// complete; the Binder returns the matching card on this event and the
// caller applies its default-rule sequence through the Executor.
type ControlsAdded struct {
	Num int
}

func (ControlsAdded) isEvent() {}

// ElementAdded announces a hardware control element's appearance.
type ElementAdded struct {
	CardNum int
	NumID   int
	IfName  string
	Name    string
	Index   int
	Dev     int
	Subdev  int
}

func (ElementAdded) isEvent() {}

// ElementChanged is informational only; the core logs it but does not
// route it anywhere (spec.md §6).
type ElementChanged struct {
	CardNum int
	NumID   int
}

func (ElementChanged) isEvent() {}

// MixerIO is the consumed adapter to the kernel mixer subsystem.
type MixerIO interface {
	// Enumerate streams CardAdded, ControlsAdded and ElementAdded events
	// for everything currently present, then closes the channel.
	Enumerate(ctx context.Context) (<-chan Event, error)

	// Watch streams ElementChanged events for cardNum until ctx is done.
	Watch(ctx context.Context, cardNum int) (<-chan ElementChanged, error)

	// Get reads a control's current typed value.
	Get(cardNum, numID int) (int64, error)

	// Set writes value into channels [index, index+count) of the given
	// control, where count is the element's descriptor channel count.
	Set(cardNum, numID int, value int64) error

	// Descriptor returns the value kind and descriptor metadata for a
	// control, plus its channel count.
	Descriptor(cardNum, numID int) (model.ValueKind, model.Descriptor, int, error)
}
