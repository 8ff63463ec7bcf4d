package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/citadel-tech/coinswap-go/taker"
)

var errSwapAlreadyRunning = errors.New("takerd: a swap is already running")

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

// controlServer is takerd's local control plane: a single plain-JSON-over-
// HTTP endpoint coinswap-cli talks to. The teacher's own lnd.go exposes a
// gRPC server plus a grpc-gateway REST proxy over it for exactly this kind
// of operator control surface, but both are explicitly out of scope here
// (SPEC_FULL.md Non-goals, "gRPC control plane") -- this is the minimal
// stand-in: one handler, one endpoint, no macaroon auth, meant for a
// trusted local operator only, the same trust boundary bitcoind's own
// cookie-auth RPC interface assumes.
type controlServer struct {
	tk *taker.Taker

	mu      sync.Mutex
	running bool
}

type swapRequest struct {
	AmountSat int64 `json:"amount_sat"`
}

type swapResponse struct {
	SwapID   string   `json:"swap_id,omitempty"`
	Preimage string   `json:"preimage,omitempty"`
	Hops     []string `json:"hops,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func newControlServer(tk *taker.Taker) *controlServer {
	return &controlServer{tk: tk}
}

func (s *controlServer) serve(ctx context.Context, addr string) (func() error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/swap", s.handleSwap(ctx))

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("control server: %v", err)
		}
	}()

	return func() error { return srv.Close() }, nil
}

func (s *controlServer) handleSwap(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
			return
		}

		var req swapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeSwapError(w, http.StatusBadRequest, err)
			return
		}

		s.mu.Lock()
		if s.running {
			s.mu.Unlock()
			writeSwapError(w, http.StatusConflict, errSwapAlreadyRunning)
			return
		}
		s.running = true
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		result, err := s.tk.Run(ctx, req.AmountSat)
		if err != nil {
			writeSwapError(w, http.StatusUnprocessableEntity, err)
			return
		}

		resp := swapResponse{
			SwapID:   result.SwapID,
			Preimage: hexEncode(result.Preimage[:]),
			Hops:     result.Hops,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func writeSwapError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(swapResponse{Error: err.Error()})
}
