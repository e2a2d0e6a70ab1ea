// Package supervisor runs the application's API and web processes as one
// session: it spawns them in order, probes their readiness, watches for
// either one dying, and tears the whole session down when the operator
// interrupts it or a child exits on its own.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/coursemate/coursemate/internal/log"
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateNew State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config carries the session timing knobs and the children to run.
// Children are spawned in slice order with StartGap between them.
type Config struct {
	Children []Spec

	// LogDir receives one log file per child; created if missing.
	LogDir string
	// LockFile, when set, enforces a single supervisor instance per host.
	LockFile string

	// StartGap is the pause between spawning consecutive children, giving
	// the earlier child time to bind its port.
	StartGap time.Duration
	// SettleDelay is the pause after the last spawn before readiness is
	// probed.
	SettleDelay time.Duration
	// ProbeTimeout bounds each readiness probe.
	ProbeTimeout time.Duration
	// Tick is the liveness re-check interval while monitoring.
	Tick time.Duration
	// ShutdownGrace is how long a child gets after SIGTERM before SIGKILL.
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.StartGap <= 0 {
		c.StartGap = 2 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 3 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.Tick <= 0 {
		c.Tick = 2 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	return c
}

// Session supervises one run of the child set. It is single-use: a stopped
// session cannot be restarted.
type Session struct {
	cfg    Config
	logger log.Logger

	mu       sync.Mutex
	state    State
	children []*Child
	lock     *flock.Flock

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewSession builds a session from cfg, filling in default timings.
func NewSession(cfg Config, logger log.Logger) *Session {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Session{cfg: cfg.withDefaults(), logger: logger}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Children returns the children spawned so far.
func (s *Session) Children() []*Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Child, len(s.children))
	copy(out, s.children)
	return out
}

// Start spawns every configured child in order, pausing StartGap between
// spawns and SettleDelay after the last one. A spawn failure tears down the
// children already started and returns a SpawnError; later children are
// never spawned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNew {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: start in state %s", s.state)
	}
	s.mu.Unlock()

	if s.cfg.LockFile != "" {
		lock := flock.New(s.cfg.LockFile)
		held, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("supervisor: acquiring lock %s: %w", s.cfg.LockFile, err)
		}
		if !held {
			return ErrAlreadyRunning
		}
		s.mu.Lock()
		s.lock = lock
		s.mu.Unlock()
	}

	if err := os.MkdirAll(s.cfg.LogDir, 0o755); err != nil {
		s.releaseLock()
		return fmt.Errorf("supervisor: creating log dir: %w", err)
	}

	for i, spec := range s.cfg.Children {
		if i > 0 {
			if err := sleepCtx(ctx, s.cfg.StartGap); err != nil {
				s.Shutdown()
				return err
			}
		}

		child, err := startChild(spec, s.cfg.LogDir)
		if err != nil {
			s.logger.Error("child failed to start", "child", spec.Name, "error", err)
			s.Shutdown()
			return err
		}
		s.logger.Info("child started", "child", child.Name, "pid", child.PID())

		s.mu.Lock()
		s.children = append(s.children, child)
		s.mu.Unlock()
	}

	if err := sleepCtx(ctx, s.cfg.SettleDelay); err != nil {
		s.Shutdown()
		return err
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	return nil
}

// CheckReadiness probes each child's ReadyURL with a bounded timeout and
// returns the per-child result. A failed probe is reported and logged but
// never aborts the session.
func (s *Session) CheckReadiness(ctx context.Context) map[string]bool {
	client := &http.Client{
		Timeout:   s.cfg.ProbeTimeout,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	ready := make(map[string]bool)

	for _, child := range s.Children() {
		if child.ReadyURL == "" {
			continue
		}
		ready[child.Name] = s.probe(ctx, client, child)
	}
	return ready
}

func (s *Session) probe(ctx context.Context, client *http.Client, child *Child) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, child.ReadyURL, nil)
	if err != nil {
		s.logger.Warn("readiness probe failed", "child", child.Name, "error", err)
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		s.logger.Warn("child not ready", "child", child.Name, "url", child.ReadyURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		s.logger.Warn("child not ready", "child", child.Name, "url", child.ReadyURL, "status", resp.StatusCode)
		return false
	}
	s.logger.Info("child ready", "child", child.Name, "url", child.ReadyURL)
	return true
}

// Monitor blocks until the operator cancels ctx or any child exits. A child
// exit returns an ExitError naming the dead child; cancellation returns
// ctx.Err(). Either way the caller is expected to call Shutdown next.
//
// Child deaths arrive on two paths: the reap channel fires the moment a
// child is waited on, and a periodic tick re-checks liveness against the
// pid table. The tick checks liveness only; readiness is not re-probed.
func (s *Session) Monitor(ctx context.Context) error {
	children := s.Children()

	exited := make(chan *Child, len(children))
	var wg sync.WaitGroup
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer wg.Wait()
	defer stopWatch()
	for _, child := range children {
		wg.Add(1)
		go func(c *Child) {
			defer wg.Done()
			select {
			case <-c.Done():
				exited <- c
			case <-watchCtx.Done():
			}
		}(child)
	}

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("monitor interrupted", "reason", ctx.Err())
			return ctx.Err()

		case child := <-exited:
			err := &ExitError{Child: child.Name, Err: child.WaitErr()}
			s.logger.Error("child exited unexpectedly", "child", child.Name, "pid", child.PID(), "error", child.WaitErr())
			return err

		case <-ticker.C:
			for _, child := range children {
				if !child.Alive() {
					err := &ExitError{Child: child.Name, Err: child.WaitErr()}
					s.logger.Error("child no longer alive", "child", child.Name, "pid", child.PID())
					return err
				}
			}
		}
	}
}

// Shutdown terminates every child and releases session resources. It is
// idempotent: concurrent and repeated calls collapse into one teardown, and
// children that already died are skipped without error. Children are
// stopped in reverse spawn order.
func (s *Session) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.state = StateShuttingDown
		children := make([]*Child, len(s.children))
		copy(children, s.children)
		s.mu.Unlock()

		s.logger.Info("shutting down session", "children", len(children))

		var errs []error
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			if err := child.Terminate(s.cfg.ShutdownGrace); err != nil {
				s.logger.Error("child did not stop cleanly", "child", child.Name, "error", err)
				errs = append(errs, err)
			} else {
				s.logger.Info("child stopped", "child", child.Name)
			}
			child.closeLog()
		}

		s.releaseLock()

		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		s.shutdownErr = errors.Join(errs...)
	})
	return s.shutdownErr
}

func (s *Session) releaseLock() {
	s.mu.Lock()
	lock := s.lock
	s.lock = nil
	s.mu.Unlock()
	if lock != nil {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("releasing lock", "error", err)
		}
	}
}

// Run drives the whole lifecycle: start, readiness check, monitor, and
// shutdown. It returns exit code 0 when the operator interrupted the
// session and 1 when a child died or startup failed. The signal handler is
// expected to cancel ctx only; all teardown happens here.
func (s *Session) Run(ctx context.Context) int {
	if err := s.Start(ctx); err != nil {
		s.logger.Error("startup failed", "error", err)
		s.Shutdown()
		if errors.Is(err, context.Canceled) {
			return 0
		}
		return 1
	}

	ready := s.CheckReadiness(ctx)
	for name, ok := range ready {
		if !ok {
			s.logger.Warn("child started but is not ready yet", "child", name)
		}
	}

	err := s.Monitor(ctx)
	s.Shutdown()

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return 1
	}
	return 0
}

// sleepCtx pauses for d, returning early with ctx.Err() on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
