package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInjected marks a failure produced by Loopback fault injection.
var ErrInjected = errors.New("telemetry: injected failure")

// Loopback is an in-process plant server. Values written by a client are
// read back unchanged; the plant simulation talks to it through Get and Set.
type Loopback struct {
	ns uint16

	mu         sync.Mutex
	values     map[string]Value
	sessions   map[*loopSession]struct{}
	dialErr    error
	failReads  int
	failWrites int
	dials      int
}

func NewLoopback(ns uint16) *Loopback {
	return &Loopback{
		ns:       ns,
		values:   make(map[string]Value),
		sessions: make(map[*loopSession]struct{}),
	}
}

func (l *Loopback) Namespace() uint16 { return l.ns }

// Set stores a value as the server.
func (l *Loopback) Set(name string, v Value) {
	l.mu.Lock()
	l.values[name] = v
	l.mu.Unlock()
}

func (l *Loopback) Get(name string) (Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.values[name]
	return v, ok
}

// Refuse makes every following Dial fail with err; nil accepts again.
func (l *Loopback) Refuse(err error) {
	l.mu.Lock()
	l.dialErr = err
	l.mu.Unlock()
}

// FailReads makes the next n reads fail without ending the session.
func (l *Loopback) FailReads(n int) {
	l.mu.Lock()
	l.failReads = n
	l.mu.Unlock()
}

func (l *Loopback) FailWrites(n int) {
	l.mu.Lock()
	l.failWrites = n
	l.mu.Unlock()
}

// DropSessions ends every open session as if the server went away.
func (l *Loopback) DropSessions() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for s := range l.sessions {
		s.lost = true
		delete(l.sessions, s)
	}
}

func (l *Loopback) OpenSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Loopback) Dials() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dials
}

func (l *Loopback) Dial(ctx context.Context, endpoint string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dials++
	if l.dialErr != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, l.dialErr)
	}
	s := &loopSession{server: l, endpoint: endpoint}
	l.sessions[s] = struct{}{}
	return s, nil
}

type loopSession struct {
	server   *Loopback
	endpoint string
	// guarded by server.mu
	lost bool
}

func (s *loopSession) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.lost {
		return fmt.Errorf("%w: %s", ErrSessionLost, s.endpoint)
	}
	return nil
}

func (s *loopSession) Read(ctx context.Context, nodes []NodeID) ([]Value, error) {
	l := s.server
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if l.failReads > 0 {
		l.failReads--
		return nil, fmt.Errorf("read: %w", ErrInjected)
	}
	out := make([]Value, len(nodes))
	for i, n := range nodes {
		v, ok := l.values[n.Name]
		if !ok || n.Namespace != l.ns {
			v = Empty("BadNodeIdUnknown")
		}
		out[i] = v
	}
	return out, nil
}

func (s *loopSession) Write(ctx context.Context, values []WriteValue) error {
	l := s.server
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if l.failWrites > 0 {
		l.failWrites--
		return fmt.Errorf("write: %w", ErrInjected)
	}
	for _, w := range values {
		if w.Node.Namespace != l.ns {
			return fmt.Errorf("write %s: unknown namespace", w.Node)
		}
		l.values[w.Node.Name] = w.Value
	}
	return nil
}

func (s *loopSession) Close(ctx context.Context) error {
	l := s.server
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, s)
	s.lost = true
	return nil
}
