package mixerio_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nokia-audio/alsapolicyd/internal/mixerio"
	"github.com/nokia-audio/alsapolicyd/internal/model"
)

func TestFakeEnumerateReplaysRegisteredHardware(t *testing.T) {
	f := mixerio.NewFake()
	f.AddCard(0, "0", "HDA")
	f.AddElement(0, 7, "MIXER", "Master", 0, 0, 0, model.ValueKindInt, model.IntDescriptor{Min: 0, Max: 100}, 1)

	ch, err := f.Enumerate(context.Background())
	require.NoError(t, err)

	var events []mixerio.Event
	for ev := range ch {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, mixerio.CardAdded{Num: 0, ID: "0", Name: "HDA"}, events[0])
	assert.Equal(t, mixerio.ElementAdded{CardNum: 0, NumID: 7, IfName: "MIXER", Name: "Master"}, events[1])
	assert.Equal(t, mixerio.ControlsAdded{Num: 0}, events[2])
}

func TestFakeSetWritesEveryChannel(t *testing.T) {
	f := mixerio.NewFake()
	f.AddCard(0, "0", "HDA")
	f.AddElement(0, 7, "MIXER", "Master", 0, 0, 0, model.ValueKindInt, model.IntDescriptor{Min: 0, Max: 100}, 2)

	require.NoError(t, f.Set(0, 7, 50))

	got, err := f.Get(0, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got)
	assert.Equal(t, []mixerio.FakeSetCall{{CardNum: 0, NumID: 7, Value: 50}}, f.SetCalls)
}
