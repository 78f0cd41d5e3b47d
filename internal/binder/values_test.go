package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/nokia-audio/alsapolicyd/internal/model"
)

func TestPercentToValueLaws(t *testing.T) {
	assert.Equal(t, int64(50), percentToValue(50, 0, 100, 0))
	assert.Equal(t, int64(100), percentToValue(100, 0, 100, 0))
	assert.Equal(t, int64(0), percentToValue(0, 0, 100, 0))
	assert.Equal(t, int64(100), percentToValue(110, 0, 100, 0))

	assert.Equal(t, int64(15), percentToValue(12, 0, 100, 5))
}

func TestPercentToValueIsAlwaysInRangeAndStepAligned(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		min := rapid.Int64Range(-1000, 1000).Draw(rt, "min")
		step := rapid.Int64Range(0, 100).Draw(rt, "step")

		// The formula returns max itself at p >= 100, so step alignment
		// holds only for descriptors whose range is a whole number of steps.
		var span int64
		if step == 0 {
			span = rapid.Int64Range(1, 2000).Draw(rt, "span")
		} else {
			span = step * rapid.Int64Range(1, 20).Draw(rt, "steps")
		}

		max := min + span
		p := rapid.Int64Range(-50, 200).Draw(rt, "percent")

		v := percentToValue(p, min, max, step)

		assert.GreaterOrEqual(t, v, min)
		assert.LessOrEqual(t, v, max)

		if step != 0 {
			assert.Zero(t, (v-min)%step, "expected value %d to be a multiple of step %d above min %d", v, step, min)
		}
	})
}

func TestResolveIntPlainAndUnitLess(t *testing.T) {
	d := model.IntDescriptor{Min: 0, Max: 100, Step: 0}

	v, err := resolveInt("50", d)
	assert.NoError(t, err)
	assert.Equal(t, int64(50), v)

	v, err = resolveInt("50U", d)
	assert.NoError(t, err)
	assert.Equal(t, int64(50), v)

	_, err = resolveInt("150", d)
	assert.Error(t, err)

	_, err = resolveInt("nope", d)
	assert.Error(t, err)
}

func TestResolveIntStepMisalignmentRejected(t *testing.T) {
	d := model.IntDescriptor{Min: 0, Max: 100, Step: 5}

	_, err := resolveInt("12U", d)
	assert.Error(t, err)

	v, err := resolveInt("15U", d)
	assert.NoError(t, err)
	assert.Equal(t, int64(15), v)
}

func TestResolveEnum(t *testing.T) {
	d := model.EnumDescriptor{Names: []string{"Off", "Mic", "Line"}}

	v, err := resolveEnum("Mic", d)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = resolveEnum("Nonexistent", d)
	assert.Error(t, err)
}

func TestResolveBool(t *testing.T) {
	v, err := resolveBool("ON")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = resolveBool("off")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, err = resolveBool("nope")
	assert.Error(t, err)
}
