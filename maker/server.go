package maker

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/walletstore"
)

// Server accepts inbound Taker connections and runs each one's FSM to
// completion alongside the Maker's idle and broadcast-contract monitors.
//
// Grounded on the teacher's server.go: a listener goroutine accepting
// connections in a loop, gated on atomic shutdown/started flags, handing
// each accepted connection off to its own per-connection goroutine.
type Server struct {
	cfg     *Config
	store   *walletstore.Store
	chain   chainrpc.ChainBackend
	tracker *connTracker

	listener net.Listener

	started  int32
	shutdown int32
	wg       sync.WaitGroup
	quit     chan struct{}
}

// NewServer builds a Maker server bound to addr, not yet listening.
func NewServer(addr string, cfg *Config, store *walletstore.Store, chain chainrpc.ChainBackend) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		chain:    chain,
		tracker:  newConnTracker(),
		listener: l,
		quit:     make(chan struct{}),
	}, nil
}

// Start waits for the chain backend to be reachable, then launches the
// accept loop and the background monitors.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	if err := s.waitForChainBackend(ctx); err != nil {
		return err
	}

	s.wg.Add(2)
	go s.acceptLoop()
	go func() {
		defer s.wg.Done()
		monitors := NewMonitors(s.cfg, s.store, s.chain, s.tracker)
		if err := monitors.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("maker: monitors exited: %v", err)
		}
	}()

	return nil
}

// waitForChainBackend blocks until the chain backend answers a basic RPC,
// gating startup on node liveness (spec.md §7's ChainRPCError row: treat a
// down/unsynced node as a retryable precondition, not a fatal error).
func (s *Server) waitForChainBackend(ctx context.Context) error {
	_, err := s.chain.BlockchainInfo(ctx)
	return err
}

// acceptLoop is the Maker's TCP accept loop (spec §4.4's implicit
// precondition: a Maker must be reachable before it can serve the FSM).
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for atomic.LoadInt32(&s.shutdown) == 0 {
		netConn, err := s.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.shutdown) == 0 {
				log.Errorf("maker: accept: %v", err)
			}
			continue
		}

		log.Infof("maker: new inbound connection from %v", netConn.RemoteAddr())

		c := newConn(netConn, s.cfg, s.store, s.chain)
		s.tracker.add(c)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.tracker.remove(c)
			defer c.Close()

			if err := c.serve(context.Background()); err != nil {
				log.Debugf("maker: connection %s closed: %v", c.RemoteAddr(), err)
			}
		}()
	}
}

// Stop closes the listener and every live connection, then waits for the
// accept loop and monitors to exit.
func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.shutdown, 0, 1) {
		return nil
	}
	close(s.quit)

	err := s.listener.Close()
	for _, c := range s.tracker.snapshot() {
		c.Close()
	}

	s.wg.Wait()
	return err
}
