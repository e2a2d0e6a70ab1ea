package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// killDeadline bounds how long a reap waits after SIGKILL before giving up
// on the child.
const killDeadline = 10 * time.Second

// Spec describes one child process the supervisor runs.
type Spec struct {
	// Name identifies the child in logs and errors, e.g. "api".
	Name string
	// Command is the argv to execute; Command[0] is the binary.
	Command []string
	// Env is appended to the current process environment.
	Env []string
	// ReadyURL, when set, is probed by CheckReadiness after startup.
	ReadyURL string
	// LogFile is the file name (under the session log directory) that
	// receives the child's stdout and stderr. Recreated on every run.
	LogFile string
}

// Child is a running supervised process.
type Child struct {
	Spec

	cmd     *exec.Cmd
	pid     int
	logFile *os.File

	// done is closed by the wait goroutine once the child is reaped.
	done    chan struct{}
	waitErr error
}

// startChild spawns the process described by spec, routing its output to a
// freshly truncated log file under logDir. A wait goroutine reaps the
// process as soon as it exits and closes done.
func startChild(spec Spec, logDir string) (*Child, error) {
	if len(spec.Command) == 0 {
		return nil, &SpawnError{Child: spec.Name, Err: errors.New("empty command")}
	}

	var logFile *os.File
	if spec.LogFile != "" {
		f, err := os.Create(filepath.Join(logDir, spec.LogFile))
		if err != nil {
			return nil, &SpawnError{Child: spec.Name, Err: fmt.Errorf("creating log file: %w", err)}
		}
		logFile = f
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, &SpawnError{Child: spec.Name, Err: err}
	}

	c := &Child{
		Spec:    spec,
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		logFile: logFile,
		done:    make(chan struct{}),
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

// PID returns the operating-system process id of the child.
func (c *Child) PID() int { return c.pid }

// Done is closed once the child process has exited and been reaped.
func (c *Child) Done() <-chan struct{} { return c.done }

// WaitErr returns the wait result; only meaningful after Done is closed.
func (c *Child) WaitErr() error {
	select {
	case <-c.done:
		return c.waitErr
	default:
		return nil
	}
}

// Alive reports whether the child process still exists. The reap channel is
// authoritative; the pid table is consulted as a cross-check so a wedged
// wait cannot mask a dead process.
func (c *Child) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
	}
	exists, err := process.PidExists(int32(c.pid))
	if err != nil {
		// When the pid table cannot be read, trust the reaper.
		return true
	}
	return exists
}

// Terminate stops the child: SIGTERM, a grace period, then SIGKILL. It is
// a no-op for a child that already exited and tolerates the process dying
// between checks.
func (c *Child) Terminate(grace time.Duration) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signalling %s: %w", c.Name, err)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(grace):
	}

	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing %s: %w", c.Name, err)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(killDeadline):
		return &ShutdownTimeoutError{Child: c.Name, PID: c.pid}
	}
}

// closeLog closes the child's log file if one was opened.
func (c *Child) closeLog() {
	if c.logFile != nil {
		c.logFile.Close()
	}
}
