package dispatcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nokia-audio/alsapolicyd/internal/executor"
	"github.com/nokia-audio/alsapolicyd/internal/model"
	"github.com/nokia-audio/alsapolicyd/internal/scheduler"
)

// unknownAction is deliberately not one of the three recognized kinds, to
// exercise Dispatch's default case. It lives in an in-package test file
// because Action's marker method is unexported.
type unknownAction struct{}

func (unknownAction) isAction() {}

func TestDispatchRejectsUnknownActionType(t *testing.T) {
	m := model.New()
	sched := scheduler.New(func(tail []*model.Rule) {}, nil)
	ex := executor.New(nil, sched, nil)
	d := New(m, ex, nil)

	_, err := d.Dispatch(unknownAction{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
