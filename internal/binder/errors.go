package binder

import "fmt"

// BindError reports a mismatch between hardware and configuration
// (spec.md §7). It is always logged, never fatal; the affected element or
// card simply stays unbound.
type BindError struct {
	Reason string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind: %s", e.Reason)
}

// ValueError reports a textual rule value that could not be resolved
// against an element's descriptor (spec.md §7). The rule keeps whatever
// value it previously held.
type ValueError struct {
	Line   int
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("value error at line %d: %s", e.Line, e.Reason)
}
