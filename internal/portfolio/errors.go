package portfolio

import "fmt"

// InvariantViolationError reports a defensive check failure after a cycle.
// It indicates an engine bug, not bad input, and must be treated as fatal
// rather than silently corrected.
type InvariantViolationError struct {
	Ticker string
	Check  string
	Detail string
}

func (e *InvariantViolationError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("invariant violation (%s): %s", e.Check, e.Detail)
	}
	return fmt.Sprintf("invariant violation (%s) for %s: %s", e.Check, e.Ticker, e.Detail)
}
