package maker

import (
	"context"
	"sync"

	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/recovery"
	"github.com/citadel-tech/coinswap-go/walletstore"
	"github.com/lightningnetwork/lnd/clock"
)

// connTracker is the shared registry a Maker's monitors walk: every live
// Conn plus a one-shot guard so recovery is triggered at most once.
//
// Grounded on breacharbiter.go's spentOutputs/breachInfo map walked by a
// background goroutine reacting to outside-the-happy-path events; here
// the trigger is an idle or vanished connection instead of a spent
// breached output.
type connTracker struct {
	mu             sync.Mutex
	conns          map[string]*Conn
	recoveryCalled bool
}

func newConnTracker() *connTracker {
	return &connTracker{conns: make(map[string]*Conn)}
}

func (t *connTracker) add(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.RemoteAddr()] = c
}

func (t *connTracker) remove(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c.RemoteAddr())
}

func (t *connTracker) snapshot() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	conns := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	return conns
}

// Monitors runs a Maker's two background watchdogs (spec §4.4): the
// idle-state monitor, which drops connections that stall past IdleTimeout,
// and the broadcast-contract monitor, which watches the chain for any
// tracked contract tx appearing unexpectedly and, on the first such
// sighting, runs the full recovery routine.
//
// Grounded on breacharbiter.go's contractObserver/breachObserver pair of
// select-loop goroutines; the poll cadence is driven by cfg.Clock.TickAfter
// (lnd/clock) rather than a plain time.Ticker, so tests can advance it
// deterministically with clock.NewTestClock.
type Monitors struct {
	cfg     *Config
	store   *walletstore.Store
	chain   chainrpc.ChainBackend
	tracker *connTracker
}

// NewMonitors builds a Maker's background watchdog pair.
func NewMonitors(cfg *Config, store *walletstore.Store, chain chainrpc.ChainBackend, tracker *connTracker) *Monitors {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	return &Monitors{cfg: cfg, store: store, chain: chain, tracker: tracker}
}

// Run blocks, alternating idle-connection sweeps and broadcast-contract
// checks every MonitorPollInterval, until ctx is cancelled.
func (m *Monitors) Run(ctx context.Context) error {
	interval := m.cfg.MonitorPollInterval
	if interval <= 0 {
		interval = DefaultIdleTimeout / 6
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.cfg.Clock.TickAfter(interval):
			m.sweepIdle(ctx)
			if err := m.checkBroadcastContracts(ctx); err != nil {
				log.Errorf("maker: broadcast-contract monitor: %v", err)
			}
		}
	}
}

// sweepIdle closes any connection that has made no forward progress for
// longer than IdleTimeout (spec §4.4 Idle-state monitor). A reaped
// connection that had already committed swapcoins gets the same recovery
// routine the broadcast-contract monitor runs, since a peer that vanishes
// after funding commits is otherwise only caught if it happens to broadcast
// its side itself.
func (m *Monitors) sweepIdle(ctx context.Context) {
	needsRecovery := false

	for _, c := range m.tracker.snapshot() {
		if c.IdleSince() < m.cfg.IdleTimeout {
			continue
		}
		log.Warnf("maker: closing idle connection %s", c.RemoteAddr())
		if c.HasSwapcoins() {
			needsRecovery = true
		}
		c.Close()
		m.tracker.remove(c)
	}

	if needsRecovery {
		if err := m.triggerRecovery(ctx); err != nil {
			log.Errorf("maker: idle-connection recovery: %v", err)
		}
	}
}

// checkBroadcastContracts watches the chain for any contract tx this
// Maker's live connections are tracking to confirm unexpectedly (the
// counterparty breaking the cooperative path), and runs the recovery
// routine the first time one is seen (spec §4.4 Broadcast-contract
// monitor).
func (m *Monitors) checkBroadcastContracts(ctx context.Context) error {
	for _, c := range m.tracker.snapshot() {
		for _, txid := range c.ContractTxids() {
			_, err := m.chain.TxConfirmations(ctx, &txid)
			if err != nil {
				continue // not yet on chain, nothing to react to
			}
			return m.triggerRecovery(ctx)
		}
	}
	return nil
}

// triggerRecovery runs the shared recovery subroutine at most once per
// Maker lifetime: once a contract has hit the chain, every outstanding
// swapcoin this Maker holds needs the same unwind regardless of which
// connection surfaced it.
func (m *Monitors) triggerRecovery(ctx context.Context) error {
	m.tracker.mu.Lock()
	if m.tracker.recoveryCalled {
		m.tracker.mu.Unlock()
		return nil
	}
	m.tracker.recoveryCalled = true
	m.tracker.mu.Unlock()

	log.Warnf("maker: contract tx observed on chain, entering recovery")

	r := recovery.New(recovery.Config{
		Chain:        m.chain,
		Store:        m.store,
		SweepScript:  m.cfg.SweepScript,
		SweepFee:     m.cfg.SweepFee,
		PollInterval: m.cfg.MonitorPollInterval,
	})
	return r.Run(ctx)
}
