package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ContractCaller is the subset of an RPC client the registry needs. An
// *ethclient.Client satisfies it; tests supply fakes.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// RegistryRecord is the on-chain decision row. A zero Timestamp means the
// decision was never logged.
type RegistryRecord struct {
	ID          string
	IPFSCidHash string
	DomainHash  string
	ModelHash   string
	Subject     string
	Timestamp   uint64
}

// Registry reads the decision registry contract.
type Registry struct {
	caller  ContractCaller
	address common.Address
}

func NewRegistry(caller ContractCaller, address string) *Registry {
	return &Registry{caller: caller, address: common.HexToAddress(address)}
}

// IsDecisionLogged reports whether a decision id is already committed.
func (r *Registry) IsDecisionLogged(ctx context.Context, decisionID string) (bool, error) {
	parsed, err := loadRegistryABI()
	if err != nil {
		return false, err
	}
	id, err := DecisionIDToBytes32(decisionID)
	if err != nil {
		return false, err
	}
	data, err := parsed.Pack("isDecisionLogged", id)
	if err != nil {
		return false, fmt.Errorf("chain: pack isDecisionLogged: %w", err)
	}
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("chain: isDecisionLogged call: %w", err)
	}
	out, err := parsed.Unpack("isDecisionLogged", raw)
	if err != nil {
		return false, fmt.Errorf("chain: unpack isDecisionLogged: %w", err)
	}
	logged, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: isDecisionLogged returned unexpected type")
	}
	return logged, nil
}

// Decision fetches the stored record for a decision id.
func (r *Registry) Decision(ctx context.Context, decisionID string) (RegistryRecord, error) {
	parsed, err := loadRegistryABI()
	if err != nil {
		return RegistryRecord{}, err
	}
	id, err := DecisionIDToBytes32(decisionID)
	if err != nil {
		return RegistryRecord{}, err
	}
	data, err := parsed.Pack("decisions", id)
	if err != nil {
		return RegistryRecord{}, fmt.Errorf("chain: pack decisions: %w", err)
	}
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return RegistryRecord{}, fmt.Errorf("chain: decisions call: %w", err)
	}
	out, err := parsed.Unpack("decisions", raw)
	if err != nil {
		return RegistryRecord{}, fmt.Errorf("chain: unpack decisions: %w", err)
	}
	if len(out) != 6 {
		return RegistryRecord{}, fmt.Errorf("chain: decisions returned %d values, want 6", len(out))
	}
	rec := RegistryRecord{}
	if v, ok := out[0].([32]byte); ok {
		rec.ID = hexutil.Encode(v[:])
	}
	if v, ok := out[1].([32]byte); ok {
		rec.IPFSCidHash = hexutil.Encode(v[:])
	}
	if v, ok := out[2].([32]byte); ok {
		rec.DomainHash = hexutil.Encode(v[:])
	}
	if v, ok := out[3].([32]byte); ok {
		rec.ModelHash = hexutil.Encode(v[:])
	}
	if v, ok := out[4].(string); ok {
		rec.Subject = v
	}
	if v, ok := out[5].(*big.Int); ok {
		rec.Timestamp = v.Uint64()
	}
	return rec, nil
}
