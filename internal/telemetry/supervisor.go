package telemetry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/sirupsen/logrus"
)

// Runner is the per-session work; *Bridge implements it.
type Runner interface {
	Run(ctx context.Context, sess Session) error
}

type SupervisorConfig struct {
	Port          int
	Path          string
	RetryInterval time.Duration
	DialTimeout   time.Duration
}

type Supervisor struct {
	cfg     SupervisorConfig
	dialer  Dialer
	runner  Runner
	address *cell.Cell[string]
	log     *logrus.Entry

	// OnTransition is called from the supervisor goroutine after every
	// state change. Set it before Run.
	OnTransition func(from, to State)

	mu       sync.Mutex
	state    State
	lastErr  error
	addr     string
	endpoint string
	current  *task

	active   atomic.Int32
	sessions atomic.Uint64
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewSupervisor(cfg SupervisorConfig, dialer Dialer, runner Runner, address *cell.Cell[string], log *logrus.Entry) *Supervisor {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Supervisor{
		cfg:     cfg,
		dialer:  dialer,
		runner:  runner,
		address: address,
		log:     log.WithField("component", "telemetry.supervisor"),
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Endpoint is the URL of the current or last attempted connection.
func (s *Supervisor) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// ActiveLoops counts session tasks that have started and not yet returned.
func (s *Supervisor) ActiveLoops() int { return int(s.active.Load()) }

// Sessions counts successful connections since start.
func (s *Supervisor) Sessions() uint64 { return s.sessions.Load() }

// Run supervises the connection until ctx is cancelled. On return no
// session task is running.
func (s *Supervisor) Run(ctx context.Context) error {
	defer func() {
		s.stopCurrent()
		s.transition(Disconnected)
	}()

	retry := time.NewTicker(s.cfg.RetryInterval)
	defer retry.Stop()

	for {
		if s.State() == Connected {
			t := s.currentTask()
			if t == nil {
				s.transition(Disconnected)
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.done:
				s.setErr(t.err)
				s.transition(Disconnected)
			case <-retry.C:
				if raw := s.address.Read(); raw != s.connectedAddr() {
					s.log.WithField("address", raw).Info("address changed, reconnecting")
					s.stopCurrent()
					s.transition(Disconnected)
					s.connect(ctx)
				}
				continue
			}
		} else {
			s.connect(ctx)
			if s.State() == Connected {
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-retry.C:
		}
	}
}

func (s *Supervisor) connect(ctx context.Context) {
	raw := s.address.Read()
	host := raw
	if strings.TrimSpace(host) == "" {
		host = LocalAddress()
	}

	endpoint, err := Endpoint(host, s.cfg.Port, s.cfg.Path)
	if err != nil {
		if s.State() != Failed {
			s.log.WithError(err).Error("cannot build endpoint, waiting for a new address")
		}
		s.setErr(err)
		s.transition(Failed)
		return
	}

	s.mu.Lock()
	s.endpoint = endpoint
	s.mu.Unlock()
	s.transition(Connecting)

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	sess, err := s.dialer.Dial(dctx, endpoint)
	cancel()
	if err != nil {
		s.log.WithError(err).WithField("endpoint", endpoint).Warn("connect failed")
		s.setErr(err)
		s.transition(Disconnected)
		return
	}

	s.start(ctx, sess, raw)
	s.sessions.Add(1)
	s.transition(Connected)
}

// start replaces the session task. The previous task, if any, has fully
// returned before the new one begins.
func (s *Supervisor) start(ctx context.Context, sess Session, raw string) {
	s.stopCurrent()

	tctx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.current = t
	s.addr = raw
	s.mu.Unlock()

	s.active.Add(1)
	go func() {
		defer close(t.done)
		defer s.active.Add(-1)

		err := s.runner.Run(tctx, sess)

		cctx, ccancel := context.WithTimeout(context.Background(), time.Second)
		if cerr := sess.Close(cctx); cerr != nil {
			s.log.WithError(cerr).Debug("session close")
		}
		ccancel()
		t.err = err
	}()
}

func (s *Supervisor) stopCurrent() {
	s.mu.Lock()
	t := s.current
	s.current = nil
	s.mu.Unlock()
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (s *Supervisor) currentTask() *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Supervisor) connectedAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Supervisor) transition(to State) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("connection state")
	if s.OnTransition != nil {
		s.OnTransition(from, to)
	}
}
