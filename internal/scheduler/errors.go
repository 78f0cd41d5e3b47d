package scheduler

import "errors"

// ErrBusy is returned by OutbandExecute when a second outband sequence is
// requested while one is already pending (spec.md §7 ScheduleBusy).
var ErrBusy = errors.New("outband execution already scheduled")
