package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/units"
)

type transitionLog struct {
	mu    sync.Mutex
	steps [][2]State
}

func (l *transitionLog) record(from, to State) {
	l.mu.Lock()
	l.steps = append(l.steps, [2]State{from, to})
	l.mu.Unlock()
}

func (l *transitionLog) count(from, to State) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.steps {
		if s[0] == from && s[1] == to {
			n++
		}
	}
	return n
}

// countingRunner wraps a Bridge and tracks how many Run calls overlap.
type countingRunner struct {
	inner   Runner
	mu      sync.Mutex
	running int
	peak    int
}

func (c *countingRunner) Run(ctx context.Context, sess Session) error {
	c.mu.Lock()
	c.running++
	if c.running > c.peak {
		c.peak = c.running
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running--
		c.mu.Unlock()
	}()
	return c.inner.Run(ctx, sess)
}

func (c *countingRunner) Peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

var _ = Describe("Supervisor", func() {
	var (
		server  *Loopback
		board   *cell.Board
		address *cell.Writer[string]
		runner  *countingRunner
		sup     *Supervisor
		log     *transitionLog
		cancel  context.CancelFunc
		done    chan error
	)

	BeforeEach(func() {
		server = NewLoopback(2)
		seedServer(server)
		board = cell.NewBoard(cell.Seed{Address: "127.0.0.1", InletTemp: units.Celsius(79.12)})
		var err error
		address, err = board.Address.Claim(cell.Operator)
		Expect(err).NotTo(HaveOccurred())

		bridge, err := NewBridge(board, BridgeConfig{Namespace: 2, Period: 5 * time.Millisecond}, quietLog(), nil)
		Expect(err).NotTo(HaveOccurred())
		runner = &countingRunner{inner: bridge}

		sup = NewSupervisor(SupervisorConfig{
			Port:          4840,
			Path:          "rust_ciet_opcua_server",
			RetryInterval: 20 * time.Millisecond,
		}, server, runner, board.Address, quietLog())
		log = &transitionLog{}
		sup.OnTransition = log.record
	})

	start := func() {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- sup.Run(ctx) }()
	}

	AfterEach(func() {
		if cancel != nil {
			cancel()
			Eventually(done, time.Second).Should(Receive(MatchError(context.Canceled)))
			cancel = nil
		}
		Expect(sup.ActiveLoops()).To(Equal(0))
		Expect(server.OpenSessions()).To(Equal(0))
	})

	It("connects and runs one tick loop", func() {
		start()
		Eventually(sup.State, time.Second).Should(Equal(Connected))
		Expect(sup.Endpoint()).To(Equal("opc.tcp://127.0.0.1:4840/rust_ciet_opcua_server"))
		Eventually(board.OutletTemp.Read, time.Second).Should(Equal(units.Celsius(102.4)))
		Consistently(sup.ActiveLoops, 100*time.Millisecond).Should(Equal(1))
	})

	It("drops to Disconnected exactly once and reconnects with a single loop", func() {
		start()
		Eventually(sup.State, time.Second).Should(Equal(Connected))

		server.DropSessions()

		Eventually(func() uint64 { return sup.Sessions() }, time.Second).Should(BeNumerically(">=", 2))
		Eventually(sup.State, time.Second).Should(Equal(Connected))
		Expect(log.count(Connected, Disconnected)).To(Equal(1))
		Expect(sup.LastError()).To(MatchError(ErrSessionLost))

		Consistently(sup.ActiveLoops, 100*time.Millisecond).Should(Equal(1))
		Expect(server.OpenSessions()).To(Equal(1))
		Expect(runner.Peak()).To(Equal(1))
	})

	It("stays Disconnected and retries on a fixed interval while the server refuses", func() {
		server.Refuse(errors.New("connection refused"))
		start()

		Eventually(server.Dials, time.Second).Should(BeNumerically(">=", 3))
		Expect(sup.State()).NotTo(Equal(Connected))
		Expect(sup.ActiveLoops()).To(Equal(0))
		Expect(log.count(Connecting, Disconnected)).To(BeNumerically(">=", 2))

		server.Refuse(nil)
		Eventually(sup.State, time.Second).Should(Equal(Connected))
		Expect(sup.ActiveLoops()).To(Equal(1))
	})

	It("enters Failed on a malformed address and recovers once it is fixed", func() {
		address.Write("10.0.0.999")
		start()

		Eventually(sup.State, time.Second).Should(Equal(Failed))
		Expect(sup.LastError()).To(MatchError(ErrEndpoint))
		Consistently(sup.State, 60*time.Millisecond).Should(Equal(Failed))
		Expect(server.Dials()).To(Equal(0))
		Expect(log.count(Disconnected, Failed)).To(Equal(1))

		address.Write("127.0.0.1")
		Eventually(sup.State, time.Second).Should(Equal(Connected))
	})

	It("replaces the session when the operator changes the address", func() {
		start()
		Eventually(sup.State, time.Second).Should(Equal(Connected))

		address.Write("localhost")
		Eventually(sup.Endpoint, time.Second).Should(ContainSubstring("localhost"))
		Eventually(sup.State, time.Second).Should(Equal(Connected))

		Consistently(sup.ActiveLoops, 60*time.Millisecond).Should(Equal(1))
		Expect(server.OpenSessions()).To(Equal(1))
		Expect(runner.Peak()).To(Equal(1))
	})

	It("falls back to the local address when none is set", func() {
		address.Write("")
		start()
		Eventually(sup.State, time.Second).Should(Equal(Connected))
		Expect(sup.Endpoint()).To(ContainSubstring(LocalAddress()))
		Expect(board.Address.Read()).To(BeEmpty())
	})

	It("stops the tick loop when cancelled", func() {
		start()
		Eventually(sup.State, time.Second).Should(Equal(Connected))
		cancel()
		Eventually(done, time.Second).Should(Receive(MatchError(context.Canceled)))
		cancel = nil
		Expect(sup.State()).To(Equal(Disconnected))
	})
})
