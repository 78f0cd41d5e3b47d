package mixerio

import (
	"context"
	"fmt"
	"sync"

	"github.com/nokia-audio/alsapolicyd/internal/model"
)

// fakeElement is one control element tracked by Fake.
type fakeElement struct {
	ifname, name       string
	index, dev, subdev int
	kind               model.ValueKind
	descriptor         model.Descriptor
	channelCount       int
	values             []int64
}

// fakeCard is one card tracked by Fake.
type fakeCard struct {
	id, name string
	elements map[int]*fakeElement // numid -> element
}

// Fake is an in-memory MixerIO used by tests and by the hwwatch package's
// manual-testing fallback. Calls to Enumerate/Watch/Get/Set/Descriptor are
// safe for concurrent use.
type Fake struct {
	mu    sync.Mutex
	cards map[int]*fakeCard

	// SetCalls records every successful Set call, in order, for test
	// assertions.
	SetCalls []FakeSetCall
}

// FakeSetCall records one Set invocation.
type FakeSetCall struct {
	CardNum, NumID int
	Value          int64
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{cards: make(map[int]*fakeCard)}
}

// AddCard registers a card as present, to be delivered by the next
// Enumerate call as a CardAdded event.
func (f *Fake) AddCard(num int, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cards[num] = &fakeCard{id: id, name: name, elements: make(map[int]*fakeElement)}
}

// AddElement registers a control element under an already-added card.
func (f *Fake) AddElement(cardNum, numID int, ifname, name string, index, dev, subdev int, kind model.ValueKind, descriptor model.Descriptor, channelCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	card, ok := f.cards[cardNum]
	if !ok {
		panic(fmt.Sprintf("mixerio.Fake: AddElement on unknown card %d", cardNum))
	}

	card.elements[numID] = &fakeElement{
		ifname:       ifname,
		name:         name,
		index:        index,
		dev:          dev,
		subdev:       subdev,
		kind:         kind,
		descriptor:   descriptor,
		channelCount: channelCount,
		values:       make([]int64, channelCount),
	}
}

// Enumerate implements MixerIO: it replays every registered card and
// element as CardAdded/ElementAdded/ControlsAdded events, then closes the
// channel.
func (f *Fake) Enumerate(ctx context.Context) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, card := range f.cards {
		n += 2 + len(card.elements)
	}

	ch := make(chan Event, n)

	for num, card := range f.cards {
		ch <- CardAdded{Num: num, ID: card.id, Name: card.name}

		for numID, elem := range card.elements {
			ch <- ElementAdded{
				CardNum: num,
				NumID:   numID,
				IfName:  elem.ifname,
				Name:    elem.name,
				Index:   elem.index,
				Dev:     elem.dev,
				Subdev:  elem.subdev,
			}
		}

		ch <- ControlsAdded{Num: num}
	}

	close(ch)

	return ch, nil
}

// Watch implements MixerIO with a channel that only ever closes when ctx
// is done; Fake has no source of ElementChanged events of its own.
func (f *Fake) Watch(ctx context.Context, cardNum int) (<-chan ElementChanged, error) {
	ch := make(chan ElementChanged)

	go func() {
		<-ctx.Done()
		close(ch)
	}()

	return ch, nil
}

func (f *Fake) lookup(cardNum, numID int) (*fakeElement, error) {
	card, ok := f.cards[cardNum]
	if !ok {
		return nil, fmt.Errorf("mixerio: unknown card %d", cardNum)
	}

	elem, ok := card.elements[numID]
	if !ok {
		return nil, fmt.Errorf("mixerio: unknown control %d on card %d", numID, cardNum)
	}

	return elem, nil
}

// Get implements MixerIO.
func (f *Fake) Get(cardNum, numID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	elem, err := f.lookup(cardNum, numID)
	if err != nil {
		return 0, err
	}

	if len(elem.values) == 0 {
		return 0, nil
	}

	return elem.values[0], nil
}

// Set implements MixerIO: it writes value into every channel of the
// control and records the call.
func (f *Fake) Set(cardNum, numID int, value int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	elem, err := f.lookup(cardNum, numID)
	if err != nil {
		return err
	}

	for i := range elem.values {
		elem.values[i] = value
	}

	f.SetCalls = append(f.SetCalls, FakeSetCall{CardNum: cardNum, NumID: numID, Value: value})

	return nil
}

// Descriptor implements MixerIO.
func (f *Fake) Descriptor(cardNum, numID int) (model.ValueKind, model.Descriptor, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	elem, err := f.lookup(cardNum, numID)
	if err != nil {
		return model.ValueKindNone, nil, 0, err
	}

	return elem.kind, elem.descriptor, elem.channelCount, nil
}
