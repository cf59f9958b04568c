package scrape

import "fmt"

// SessionError reports that the browser session itself misbehaved
// (navigation failed, tab died, protocol error). The session is
// presumed poisoned and must not be reused.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser session error during %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// SessionFault marks the session unfit for reuse.
func (e *SessionError) SessionFault() bool { return true }

// DataError reports that the page loaded but its content did not match
// what the parser expects. The session itself is still healthy.
type DataError struct {
	Op  string
	Err error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("record data error during %s: %v", e.Op, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// SessionFault reports false: the browser can serve the next task.
func (e *DataError) SessionFault() bool { return false }
