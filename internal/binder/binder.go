// Package binder late-matches configuration entities (cards, elements)
// against hardware entities reported by MixerIO, fills in the runtime
// identifiers the Model leaves unbound, and resolves each matched
// element's rule values from their textual form to typed control values
// (spec.md §4.2).
package binder

import (
	"github.com/charmbracelet/log"

	"github.com/nokia-audio/alsapolicyd/internal/mixerio"
	"github.com/nokia-audio/alsapolicyd/internal/model"
)

// Binder holds the borrowed references it needs while mutating the Model:
// the model itself and the MixerIO adapter used to query element type and
// descriptor on discovery.
type Binder struct {
	model *model.Model
	mixer mixerio.MixerIO
	log   *log.Logger
}

// New returns a Binder over m, querying mixer for element descriptors.
func New(m *model.Model, mixer mixerio.MixerIO, logger *log.Logger) *Binder {
	if logger == nil {
		logger = log.Default()
	}

	return &Binder{model: m, mixer: mixer, log: logger.With("component", "binder")}
}

// HandleCardAdded implements spec.md §4.2's CardAdded handling: find the
// first Card whose id/name pattern matches (exact or wildcard). If found
// and unbound, bind it. If already bound to the same card number, the
// event is a re-announcement and is ignored; if bound to a different
// hardware card, log a confused-duplicate and ignore. If none match,
// silently ignore.
func (b *Binder) HandleCardAdded(ev mixerio.CardAdded) {
	for _, card := range b.model.Cards {
		if !card.ID.Matches(ev.ID) || !card.Name.Matches(ev.Name) {
			continue
		}

		if !card.Bound() {
			card.Num = ev.Num
			b.log.Info("card bound", "num", ev.Num, "id", ev.ID, "name", ev.Name)

			return
		}

		if card.Num == ev.Num {
			return
		}

		err := &BindError{Reason: "confused by adding multiple cards"}
		b.log.Error(err.Error(), "kind", "BindError", "num", ev.Num, "id", ev.ID, "name", ev.Name, "already_bound_num", card.Num)

		return
	}
}

// cardByNum finds the bound Card with the given kernel number.
func (b *Binder) cardByNum(num int) *model.Card {
	for _, card := range b.model.Cards {
		if card.Bound() && card.Num == num {
			return card
		}
	}

	return nil
}

// HandleControlsAdded implements spec.md §4.2's ControlsAdded handling: it
// signals that hardware element enumeration for a card is complete. It
// returns the matched Card so the caller can run Executor.ApplyDefaults;
// Binder does not execute rules itself.
func (b *Binder) HandleControlsAdded(ev mixerio.ControlsAdded) *model.Card {
	return b.cardByNum(ev.Num)
}

func elementMatches(e *model.Element, ev mixerio.ElementAdded) bool {
	return !e.Bound() &&
		e.IfName.Matches(ev.IfName) &&
		e.Name.Matches(ev.Name) &&
		e.Index.Matches(ev.Index) &&
		e.Dev.Matches(ev.Dev) &&
		e.Subdev.Matches(ev.Subdev)
}

// elementByNumID finds the bound Element already claiming numid within
// card, mirroring cardByNum's lookup on the element side.
func elementByNumID(card *model.Card, numID int) *model.Element {
	for _, e := range card.Elements {
		if e.Bound() && e.NumID == numID {
			return e
		}
	}

	return nil
}

// elementFieldsMatch reports whether e's configured fields agree with ev,
// the same fields elementMatches checks but without the unbound condition.
func elementFieldsMatch(e *model.Element, ev mixerio.ElementAdded) bool {
	return e.IfName.Matches(ev.IfName) &&
		e.Name.Matches(ev.Name) &&
		e.Index.Matches(ev.Index) &&
		e.Dev.Matches(ev.Dev) &&
		e.Subdev.Matches(ev.Subdev)
}

// HandleElementAdded implements spec.md §4.2's ElementAdded handling:
// first check whether numid is already claimed by a bound Element within
// the card; if so, either it's the same logical element re-announced
// (fields agree, no-op) or a conflicting duplicate (fields disagree,
// logged and ignored). Only when the numid is unclaimed does it search for
// the first unbound Element whose fields match (first-match-wins,
// insertion order). On match, query MixerIO for type and descriptor;
// unsupported types are ignored; for supported types, bind
// numid/descriptor and resolve every rule in the element's chain.
func (b *Binder) HandleElementAdded(ev mixerio.ElementAdded) {
	card := b.cardByNum(ev.CardNum)
	if card == nil {
		return
	}

	if owner := elementByNumID(card, ev.NumID); owner != nil {
		if !elementFieldsMatch(owner, ev) {
			err := &BindError{Reason: "confused by adding multiple elems"}
			b.log.Error(err.Error(), "kind", "BindError", "card", ev.CardNum, "numid", ev.NumID, "name", ev.Name)
		}

		return
	}

	var matched *model.Element

	for _, e := range card.Elements {
		if elementMatches(e, ev) {
			matched = e

			break
		}
	}

	if matched == nil {
		return
	}

	kind, descriptor, channelCount, err := b.mixer.Descriptor(ev.CardNum, ev.NumID)
	if err != nil {
		bindErr := &BindError{Reason: "can't get value descriptor"}
		b.log.Error(bindErr.Error(), "kind", "BindError", "card", ev.CardNum, "numid", ev.NumID, "err", err)

		return
	}

	if kind == model.ValueKindNone {
		b.log.Info("ignoring element of unsupported type", "card", ev.CardNum, "numid", ev.NumID, "name", ev.Name)

		return
	}

	matched.NumID = ev.NumID
	matched.Kind = kind
	matched.Descriptor = descriptor
	matched.ChannelCount = channelCount

	b.resolveChain(matched)
}

// resolveChain walks element's most-recent-rule chain (all SetValue rules
// referencing it, across every entry and the card's default sequence) and
// resolves each one's textual value now that a descriptor is known.
func (b *Binder) resolveChain(element *model.Element) {
	for rule := element.MostRecentRule; rule != nil; {
		action, ok := rule.Action.(*model.SetValueAction)
		if !ok {
			break
		}

		value, err := resolveValue(action.ValueStr, element.Kind, element.Descriptor)
		if err != nil {
			valueErr := &ValueError{Line: rule.Line, Reason: err.Error()}
			b.log.Error(valueErr.Error(), "kind", "ValueError", "value", action.ValueStr)
		} else {
			action.Value = value
		}

		rule = action.ElemRule
	}
}
