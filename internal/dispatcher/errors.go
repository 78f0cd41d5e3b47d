package dispatcher

import "errors"

// ErrInvalidArgument is returned for a route type the Dispatcher does not
// recognize (spec.md §4.5).
var ErrInvalidArgument = errors.New("invalid argument")
