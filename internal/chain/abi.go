// Package chain is the read-only blockchain boundary: registry lookups,
// logDecision calldata construction and hash verification against off-chain
// content. Nothing here signs or broadcasts transactions.
package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

const registryABIJSON = `[
  {"type":"function","name":"logDecision","stateMutability":"nonpayable","inputs":[
    {"name":"decisionId","type":"bytes32"},
    {"name":"decisionHash","type":"bytes32"},
    {"name":"modelHash","type":"bytes32"},
    {"name":"ftsoRoundId","type":"uint256"},
    {"name":"fdcProofHash","type":"bytes32"},
    {"name":"timestamp","type":"uint256"},
    {"name":"backendSigner","type":"address"}],"outputs":[]},
  {"type":"function","name":"isDecisionLogged","stateMutability":"view","inputs":[
    {"name":"decisionId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"decisions","stateMutability":"view","inputs":[
    {"name":"decisionId","type":"bytes32"}],"outputs":[
    {"name":"id","type":"bytes32"},
    {"name":"ipfsCidHash","type":"bytes32"},
    {"name":"domainHash","type":"bytes32"},
    {"name":"modelHash","type":"bytes32"},
    {"name":"subject","type":"string"},
    {"name":"timestamp","type":"uint256"}]}
]`

var (
	registryABI     abi.ABI
	registryABIOnce sync.Once
	registryABIErr  error
)

func loadRegistryABI() (abi.ABI, error) {
	registryABIOnce.Do(func() {
		registryABI, registryABIErr = abi.JSON(strings.NewReader(registryABIJSON))
	})
	return registryABI, registryABIErr
}

// DecisionIDToBytes32 left-pads the 16-byte UUID into a bytes32 slot.
func DecisionIDToBytes32(decisionID string) ([32]byte, error) {
	var out [32]byte
	id, err := uuid.Parse(strings.TrimSpace(decisionID))
	if err != nil {
		return out, fmt.Errorf("chain: decision id is not a UUID: %w", err)
	}
	copy(out[16:], id[:])
	return out, nil
}

// LogDecisionCall holds the decoded arguments of one logDecision commit.
type LogDecisionCall struct {
	DecisionID    string
	DecisionHash  string
	ModelHash     string
	FTSORoundID   uint64
	FDCProofHash  string
	Timestamp     uint64
	BackendSigner string
}

// BuildLogDecisionCalldata ABI-encodes the registry commit. The output is
// handed to an external signer; missing optional fields encode as zero.
func BuildLogDecisionCalldata(call LogDecisionCall) ([]byte, error) {
	parsed, err := loadRegistryABI()
	if err != nil {
		return nil, fmt.Errorf("chain: registry abi: %w", err)
	}
	id, err := DecisionIDToBytes32(call.DecisionID)
	if err != nil {
		return nil, err
	}
	decisionHash, err := hexToBytes32(call.DecisionHash)
	if err != nil {
		return nil, fmt.Errorf("chain: decision_hash: %w", err)
	}
	modelHash, err := hexToBytes32(call.ModelHash)
	if err != nil {
		return nil, fmt.Errorf("chain: model_hash: %w", err)
	}
	var proofHash [32]byte
	if strings.TrimSpace(call.FDCProofHash) != "" {
		proofHash, err = hexToBytes32(call.FDCProofHash)
		if err != nil {
			return nil, fmt.Errorf("chain: fdc_proof_hash: %w", err)
		}
	}
	data, err := parsed.Pack("logDecision",
		id,
		decisionHash,
		modelHash,
		new(big.Int).SetUint64(call.FTSORoundID),
		proofHash,
		new(big.Int).SetUint64(call.Timestamp),
		common.HexToAddress(call.BackendSigner),
	)
	if err != nil {
		return nil, fmt.Errorf("chain: pack logDecision: %w", err)
	}
	return data, nil
}

func hexToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
