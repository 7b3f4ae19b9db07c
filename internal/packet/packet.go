// Package packet defines the canonical, hashable record of one decision
// event. The canonical JSON bytes are the only valid pre-image for every
// hash derived from a packet.
package packet

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// DecisionPacket is immutable once built by the Interceptor. Optional fields
// serialize as empty strings / zero so the canonical form stays total: two
// packets with equal field values always produce equal bytes.
type DecisionPacket struct {
	DecisionID    string `json:"decision_id"`
	WalletAddress string `json:"wallet_address"`
	AIAction      string `json:"ai_action"`
	InputSummary  string `json:"input_summary"`
	DecisionHash  string `json:"decision_hash"`
	ModelHash     string `json:"model_hash"`
	FTSOFeedID    string `json:"ftso_feed_id"`
	FTSORoundID   uint64 `json:"ftso_round_id"`
	FDCProofHash  string `json:"fdc_proof_hash"`
	Timestamp     uint64 `json:"timestamp"`
	BackendSigner string `json:"backend_signer"`
	Subject       string `json:"subject"`
}

// CanonicalJSON renders the packet with sorted keys and no insignificant
// whitespace. Field values round-trip through a string-keyed map because
// encoding/json emits map keys in sorted order, which struct field order
// would not guarantee.
func (p DecisionPacket) CanonicalJSON() (string, error) {
	m := map[string]any{
		"decision_id":    p.DecisionID,
		"wallet_address": p.WalletAddress,
		"ai_action":      p.AIAction,
		"input_summary":  p.InputSummary,
		"decision_hash":  p.DecisionHash,
		"model_hash":     p.ModelHash,
		"ftso_feed_id":   p.FTSOFeedID,
		"ftso_round_id":  p.FTSORoundID,
		"fdc_proof_hash": p.FDCProofHash,
		"timestamp":      p.Timestamp,
		"backend_signer": p.BackendSigner,
		"subject":        p.Subject,
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("packet: canonical encoding failed: %w", err)
	}
	return string(b), nil
}

// Hash returns keccak256 over the UTF-8 canonical JSON, 0x-prefixed.
func (p DecisionPacket) Hash() (string, error) {
	canonical, err := p.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(crypto.Keccak256([]byte(canonical))), nil
}

// HashSortedJSON keccak-hashes an arbitrary string-keyed document in its
// canonical (sorted-key, compact) JSON form. Shared by the interceptor's
// decision-hash computation and the content verification path.
func HashSortedJSON(doc map[string]any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("packet: canonical encoding failed: %w", err)
	}
	return hexutil.Encode(crypto.Keccak256(b)), nil
}
