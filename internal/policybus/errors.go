package policybus

import "fmt"

// TransportError reports a failure signalling through the D-Bus transport
// (spec.md §7). It is always logged; the daemon keeps running and
// attempts re-registration the next time the decision point reappears.
type TransportError struct {
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s", e.Reason)
}
