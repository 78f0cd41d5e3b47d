package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nokia-audio/alsapolicyd/internal/model"
)

func TestDefineEntryRejectsDuplicateNames(t *testing.T) {
	m := model.New()

	_, err := m.DefineEntry("earpiece")
	require.NoError(t, err)

	_, err = m.DefineEntry("earpiece")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyDefined))
}

func TestDefineRuleOutbandRejectsOutOfRangeDelay(t *testing.T) {
	m := model.New()
	entry, err := m.DefineEntry("earpiece")
	require.NoError(t, err)

	_, err = m.DefineRuleOutband(entry, model.RuleTypeSink, 3001, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))

	_, err = m.DefineRuleOutband(entry, model.RuleTypeSink, -2, 1)
	require.Error(t, err)

	rule, err := m.DefineRuleOutband(entry, model.RuleTypeSink, -1, 1)
	require.NoError(t, err)
	_, isCancel := rule.Action.(*model.OutbandCancelAction)
	assert.True(t, isCancel)

	rule, err = m.DefineRuleOutband(entry, model.RuleTypeSink, 200, 2)
	require.NoError(t, err)
	exec, isExec := rule.Action.(*model.OutbandExecuteAction)
	require.True(t, isExec)
	assert.Equal(t, 200, exec.DelayMS)
}

func TestDefineRuleSuspendStoresMicroseconds(t *testing.T) {
	m := model.New()
	entry, err := m.DefineEntry("earpiece")
	require.NoError(t, err)

	_, err = m.DefineRuleSuspend(entry, model.RuleTypeSink, 501, 1)
	require.Error(t, err)

	rule, err := m.DefineRuleSuspend(entry, model.RuleTypeSink, 50, 1)
	require.NoError(t, err)
	suspend, ok := rule.Action.(*model.SuspendAction)
	require.True(t, ok)
	assert.Equal(t, int64(50000), suspend.DelayUS)
}

func TestSetValueRulesChainPerElement(t *testing.T) {
	m := model.New()
	card := m.DefineCard("*", "*")
	elem := m.DefineElement(card, "MIXER", "Master", -1, -1, -1)
	entry, err := m.DefineEntry("earpiece")
	require.NoError(t, err)

	r1 := m.DefineRuleSetValue(entry, model.RuleTypeSink, card, elem, "50%", 1)
	r2 := m.DefineRuleSetValue(entry, model.RuleTypeSink, card, elem, "75%", 2)

	assert.Same(t, r1, elem.MostRecentRule.Action.(*model.SetValueAction).ElemRule)
	assert.Same(t, r2, elem.MostRecentRule)

	// Walk the chain from the element's head: r2 -> r1 -> nil, all
	// referencing the same element.
	var seen []*model.Rule
	for cur := elem.MostRecentRule; cur != nil; {
		action, ok := cur.Action.(*model.SetValueAction)
		require.True(t, ok)
		assert.Same(t, elem, action.Element)
		seen = append(seen, cur)
		cur = action.ElemRule
	}
	assert.Equal(t, []*model.Rule{r2, r1}, seen)
}

func TestEntryRulesPreserveInsertionOrder(t *testing.T) {
	m := model.New()
	card := m.DefineCard("*", "*")
	elem := m.DefineElement(card, "MIXER", "Master", -1, -1, -1)
	entry, err := m.DefineEntry("earpiece")
	require.NoError(t, err)

	r1 := m.DefineRuleSetValue(entry, model.RuleTypeSink, card, elem, "10%", 1)
	r2, err := m.DefineRuleOutband(entry, model.RuleTypeSink, 100, 2)
	require.NoError(t, err)
	r3 := m.DefineRuleSetValue(entry, model.RuleTypeSink, card, elem, "90%", 3)

	assert.Equal(t, []*model.Rule{r1, r2, r3}, entry.Rules(model.RuleTypeSink))
	assert.Empty(t, entry.Rules(model.RuleTypeSource))
}

func TestCardAndElementStartUnbound(t *testing.T) {
	m := model.New()
	card := m.DefineCard("0", "HDA")
	elem := m.DefineElement(card, "MIXER", "Master", 0, 0, 0)

	assert.False(t, card.Bound())
	assert.False(t, elem.Bound())

	card.Num = 0
	elem.NumID = 7

	assert.True(t, card.Bound())
	assert.True(t, elem.Bound())
}

func TestPatternWildcardAndExact(t *testing.T) {
	any := model.StringPattern("*")
	assert.True(t, any.IsWildcard())
	assert.True(t, any.Matches("anything"))

	exact := model.StringPattern("HDA")
	assert.False(t, exact.IsWildcard())
	assert.True(t, exact.Matches("HDA"))
	assert.False(t, exact.Matches("other"))

	wildInt := model.IntPattern(-1)
	assert.True(t, wildInt.Matches(42))

	exactInt := model.IntPattern(0)
	assert.True(t, exactInt.Matches(0))
	assert.False(t, exactInt.Matches(1))
}
