package supervisor

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning indicates another supervisor instance holds the lock
// file.
var ErrAlreadyRunning = errors.New("supervisor: another instance is already running")

// SpawnError reports that a child process could not be started. It aborts
// the whole startup; children spawned earlier are torn down again.
type SpawnError struct {
	Child string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("supervisor: spawning %s: %v", e.Child, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError reports that a supervised child exited on its own. Any child
// death is fatal to the session; the sibling is terminated too.
type ExitError struct {
	Child string
	// Err is the wait result; nil when the child exited with status 0.
	Err error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("supervisor: %s exited unexpectedly", e.Child)
	}
	return fmt.Sprintf("supervisor: %s exited unexpectedly: %v", e.Child, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ShutdownTimeoutError reports that a child did not exit within the kill
// deadline after SIGKILL. This should not happen on a healthy system; the
// child is left to the OS and reported.
type ShutdownTimeoutError struct {
	Child string
	PID   int
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("supervisor: %s (pid %d) did not exit after kill", e.Child, e.PID)
}
