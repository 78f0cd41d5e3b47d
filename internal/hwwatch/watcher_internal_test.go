package hwwatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nokia-audio/alsapolicyd/internal/mixerio"
)

type fakeDevice struct {
	devnode  string
	sysname  string
	sysattrs map[string]string
}

func (d fakeDevice) Devnode() string { return d.devnode }
func (d fakeDevice) Sysname() string { return d.sysname }
func (d fakeDevice) SysattrValue(attr string) string { return d.sysattrs[attr] }

func TestDecodeCardAcceptsBareCardNode(t *testing.T) {
	dev := fakeDevice{
		sysname:  "card0",
		sysattrs: map[string]string{"id": "HDA", "number": "0"},
	}

	card, ok := decodeCard(dev)
	assert.True(t, ok)
	assert.Equal(t, mixerio.CardAdded{Num: 0, ID: "HDA", Name: "HDA"}, card)
}

func TestDecodeCardRejectsDeviceWithDevnode(t *testing.T) {
	dev := fakeDevice{
		devnode:  "/dev/snd/controlC0",
		sysname:  "controlC0",
		sysattrs: map[string]string{"id": "HDA", "number": "0"},
	}

	_, ok := decodeCard(dev)
	assert.False(t, ok, "controlC0 carries a devnode and is not the bare card entry")
}

func TestDecodeCardRejectsNonCardSysname(t *testing.T) {
	dev := fakeDevice{
		sysname:  "pcmC0D0p",
		sysattrs: map[string]string{"id": "HDA", "number": "0"},
	}

	_, ok := decodeCard(dev)
	assert.False(t, ok)
}

func TestDecodeCardRejectsMissingNumberAttr(t *testing.T) {
	dev := fakeDevice{
		sysname:  "card0",
		sysattrs: map[string]string{"id": "HDA"},
	}

	_, ok := decodeCard(dev)
	assert.False(t, ok)
}

func TestDecodeCardRejectsEmptyID(t *testing.T) {
	dev := fakeDevice{
		sysname:  "card1",
		sysattrs: map[string]string{"number": "1"},
	}

	_, ok := decodeCard(dev)
	assert.False(t, ok)
}
