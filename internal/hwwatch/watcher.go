// Package hwwatch turns udev's view of the "sound" subsystem into the
// CardAdded events MixerIO's enumerate() stream carries (spec.md §6). It
// sits outside the MixerIO boundary proper: the actual control-element
// read/write path stays behind that interface (out of scope per
// SPEC_FULL.md §4), but card presence has to come from somewhere real, and
// the reference lineage's own cm108.go already walks this exact subsystem
// through libudev to find USB audio hardware.
package hwwatch

import (
	"context"
	"regexp"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"

	"github.com/nokia-audio/alsapolicyd/internal/mixerio"
)

const soundSubsystem = "sound"

// cardNodePattern matches the bare per-card udev device (e.g. the sysfs
// node backing /sys/class/sound/card0), which carries the "id" and
// "number" sysattrs cm108.go reads off of the devnode-less entry in its
// sound-subsystem enumeration. Device nodes under that card (controlC0,
// pcmC0D0p, ...) all have a Devnode() and are skipped.
var cardNodePattern = regexp.MustCompile(`^card[0-9]+$`)

// CardHandler receives one discovered or hotplugged card.
type CardHandler func(mixerio.CardAdded)

// Watcher discovers ALSA sound cards through udev.
type Watcher struct {
	udev *udev.Udev
	log  *log.Logger
}

// New returns a Watcher. logger may be nil.
func New(logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}

	return &Watcher{
		udev: &udev.Udev{},
		log:  logger.With("component", "hwwatch"),
	}
}

// Enumerate reports every sound card currently present, in no particular
// order, then returns.
func (w *Watcher) Enumerate(handler CardHandler) error {
	e := w.udev.NewEnumerate()

	if err := e.AddMatchSubsystem(soundSubsystem); err != nil {
		return err
	}

	devices, err := e.Devices()
	if err != nil {
		return err
	}

	for _, dev := range devices {
		if card, ok := decodeCard(dev); ok {
			handler(card)
		}
	}

	return nil
}

// Run enumerates present cards, then blocks subscribing to udev "add"
// events on the sound subsystem until ctx is done, reporting newly
// attached cards as they appear. Hot-unplug is not reported: spec.md §9
// leaves hot-unplug semantics undefined, and nothing downstream resets a
// bound card back to unbound.
func (w *Watcher) Run(ctx context.Context, handler CardHandler) error {
	if err := w.Enumerate(handler); err != nil {
		w.log.Error("initial sound card enumeration failed", "err", err)
	}

	mon := w.udev.NewMonitorFromNetlink("udev")

	if err := mon.FilterAddMatchSubsystem(soundSubsystem); err != nil {
		return err
	}

	devices, err := mon.DeviceChan(ctx)
	if err != nil {
		return err
	}

	for dev := range devices {
		if dev == nil {
			continue
		}

		if dev.Action() != "add" {
			continue
		}

		if card, ok := decodeCard(dev); ok {
			handler(card)
		}
	}

	return nil
}

// SeedFake runs one enumeration pass directly into fake, registering each
// discovered card on it. cmd/alsapolicyd calls it at startup in every
// mode, since that fake is the MixerIO the daemon runs against; see
// mixerio.Fake's doc comment.
func (w *Watcher) SeedFake(fake *mixerio.Fake) error {
	return w.Enumerate(func(c mixerio.CardAdded) {
		fake.AddCard(c.Num, c.ID, c.Name)
	})
}

// cardDevice is the slice of *udev.Device's API decodeCard depends on,
// pulled out so tests can exercise the decoding rules without a real
// udev context.
type cardDevice interface {
	Devnode() string
	Sysname() string
	SysattrValue(string) string
}

// decodeCard extracts a CardAdded from the bare card-level udev device
// (no devnode of its own), mirroring cm108_inventory's devnode==nil
// branch: the "id" sysattr becomes both the card's short id and display
// name and "number" becomes its numeric card index, since that is the
// only naming information the kernel exposes at this level.
func decodeCard(dev cardDevice) (mixerio.CardAdded, bool) {
	if dev.Devnode() != "" {
		return mixerio.CardAdded{}, false
	}

	if !cardNodePattern.MatchString(dev.Sysname()) {
		return mixerio.CardAdded{}, false
	}

	id := dev.SysattrValue("id")
	numberAttr := dev.SysattrValue("number")

	num, err := strconv.Atoi(numberAttr)
	if err != nil || id == "" {
		return mixerio.CardAdded{}, false
	}

	return mixerio.CardAdded{Num: num, ID: id, Name: id}, true
}
