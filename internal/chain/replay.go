package chain

import (
	"context"
	"errors"
	"time"

	"notary/internal/logger"
	"notary/internal/pkg/circuit"
)

// ErrAlreadyLogged means the registry already holds this decision id; the
// transport layer maps it to a conflict response.
var ErrAlreadyLogged = errors.New("chain: decision already logged")

// DecisionReader is the read surface the replay guard needs.
type DecisionReader interface {
	IsDecisionLogged(ctx context.Context, decisionID string) (bool, error)
}

// ReplayGuard runs the best-effort pre-commit replay check. RPC failures
// degrade to a warning and let the commit proceed: the contract itself is
// the final replay guard, so this check fails open for availability. The
// breaker keeps a flapping RPC endpoint from stalling every commit.
type ReplayGuard struct {
	reader  DecisionReader
	breaker *circuit.Breaker
}

func NewReplayGuard(reader DecisionReader, threshold int, timeout time.Duration) *ReplayGuard {
	return &ReplayGuard{
		reader:  reader,
		breaker: circuit.NewBreaker("registry-rpc", threshold, timeout),
	}
}

// Check returns ErrAlreadyLogged only on a positive registry hit. Any RPC
// problem, including an open breaker, resolves to nil.
func (g *ReplayGuard) Check(ctx context.Context, decisionID string) error {
	if !g.breaker.Allow() {
		logger.Warnf("replay check skipped for %s: registry rpc breaker open", decisionID)
		return nil
	}
	logged, err := g.reader.IsDecisionLogged(ctx, decisionID)
	if err != nil {
		g.breaker.RecordFailure()
		logger.Warnf("replay check degraded for %s: %v", decisionID, err)
		return nil
	}
	g.breaker.RecordSuccess()
	if logged {
		return ErrAlreadyLogged
	}
	return nil
}
