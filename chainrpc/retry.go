package chainrpc

import (
	"context"
	"time"
)

// Retry policy for transient node-RPC failures, per DESIGN.md's resolution
// of spec.md §9's open question on node-RPC transient failures: a bounded
// attempt cap with exponential back-off before escalating to a fatal
// WalletError.
const (
	maxRetryAttempts = 5
	initialBackoff   = time.Second
	maxBackoff       = time.Minute
)

// withRetry runs op up to maxRetryAttempts times, doubling the delay
// between attempts starting at initialBackoff and capping at maxBackoff.
// It gives up early if ctx is done. Every call site in this package passes
// an op that talks to the node over the wire, so a failure here is
// presumptively transient (connection refused, timeout) rather than a
// permanent rejection -- RPCClient's own methods classify the terminal
// error as ErrRPCUnavailable once the budget is exhausted.
func withRetry(ctx context.Context, op func() error) error {
	return withRetryBackoff(ctx, initialBackoff, op)
}

// withRetryBackoff is withRetry parameterized on the starting backoff, so
// tests can exercise the retry/give-up/cancellation paths without waiting
// out a full second between attempts.
func withRetryBackoff(ctx context.Context, startBackoff time.Duration, op func() error) error {
	backoff := startBackoff

	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return lastErr
}
