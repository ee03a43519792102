package domain

import "fmt"

// Exception is an error raised by the bridge. Terminal exceptions end
// the session; retryable ones are the caller's decision, never ours.
type Exception struct {
	Code        int
	Description string
	Action      string
	IsTerminal  bool
	CanRetry    bool
}

func (e *Exception) Error() string {
	return fmt.Sprintf("bridge exception %d: %s", e.Code, e.Description)
}
