package chain

import (
	"context"
	"fmt"

	"notary/internal/logger"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verification outcomes are classifications shown to auditors, never
// errors. NOT_FOUND covers the zero-timestamp registry row.
const (
	StatusVerified     = "VERIFIED"
	StatusHashMismatch = "HASH_MISMATCH"
	StatusFetchFailed  = "FETCH_FAILED"
	StatusNotFound     = "NOT_FOUND"
)

// RecordReader reads committed decision rows.
type RecordReader interface {
	Decision(ctx context.Context, decisionID string) (RegistryRecord, error)
}

// VerifyResult reports one verification run.
type VerifyResult struct {
	Status       string `json:"status"`
	DecisionID   string `json:"decision_id"`
	ContentID    string `json:"content_id,omitempty"`
	OnChainHash  string `json:"on_chain_hash,omitempty"`
	ComputedHash string `json:"computed_hash,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// Verifier re-checks a committed decision against its off-chain content.
type Verifier struct {
	registry RecordReader
	cas      CAS
}

func NewVerifier(registry RecordReader, cas CAS) *Verifier {
	return &Verifier{registry: registry, cas: cas}
}

// Verify resolves the decision's off-chain content, recomputes its keccak
// hash and compares it to the committed ipfs_cid_hash.
func (v *Verifier) Verify(ctx context.Context, decisionID, contentID string) (VerifyResult, error) {
	rec, err := v.registry.Decision(ctx, decisionID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("chain: registry read: %w", err)
	}
	result := VerifyResult{
		DecisionID:  decisionID,
		ContentID:   contentID,
		OnChainHash: rec.IPFSCidHash,
	}
	if rec.Timestamp == 0 {
		result.Status = StatusNotFound
		result.Detail = "decision absent from registry"
		return result, nil
	}

	content, err := v.cas.Fetch(ctx, contentID)
	if err != nil {
		logger.Warnf("verification fetch failed decision=%s content=%s: %v", decisionID, contentID, err)
		result.Status = StatusFetchFailed
		result.Detail = err.Error()
		return result, nil
	}
	result.ComputedHash = hexutil.Encode(crypto.Keccak256(content))
	if result.ComputedHash != rec.IPFSCidHash {
		result.Status = StatusHashMismatch
		return result, nil
	}
	result.Status = StatusVerified
	return result, nil
}
