package enclave

import (
	"fmt"
	"regexp"
	"strings"

	"notary/internal/logger"
	"notary/internal/pkg/convert"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// The Decision typed-data layout mirrors the on-chain verifier contract's
// typehash exactly. Variable-length strings are keccak-hashed before they
// enter the struct because the contract's typehash only carries the hashed
// forms.

const (
	eip712DomainName    = "AIDecisionVerifier"
	eip712DomainVersion = "1"
)

// Action enum shared with the verifier contract.
var actionEnum = map[string]int64{
	"ALLOCATE":   0,
	"REALLOCATE": 1,
	"DEALLOCATE": 2,
	"HOLD":       3,
}

var decisionTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Decision": {
		{Name: "id", Type: "string"},
		{Name: "user", Type: "address"},
		{Name: "action", Type: "uint8"},
		{Name: "asset", Type: "string"},
		{Name: "amount", Type: "uint256"},
		{Name: "fromProtocol", Type: "string"},
		{Name: "toProtocol", Type: "string"},
		{Name: "confidenceScore", Type: "uint256"},
		{Name: "reasonsHash", Type: "bytes32"},
		{Name: "dataSourcesHash", Type: "bytes32"},
		{Name: "alternativesHash", Type: "bytes32"},
		{Name: "onChainHash", Type: "bytes32"},
		{Name: "modelCidHash", Type: "bytes32"},
		{Name: "xaiCidHash", Type: "bytes32"},
	},
}

var hex64Pattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// SignDecision signs the decision payload as EIP-712 typed data and returns
// the 65-byte signature hex-encoded. The input map is the loosely typed
// decision document; field coercion rules are deliberate and documented on
// each helper.
func (id *Identity) SignDecision(data map[string]any, chainID int64, verifyingContract string) (string, error) {
	digest, err := decisionDigest(data, chainID, verifyingContract)
	if err != nil {
		return "", fmt.Errorf("enclave: typed data hashing failed: %w", err)
	}
	sig, err := id.signDigest(digest)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// RecoverDecisionSigner recovers the address that produced a SignDecision
// signature over the same payload. Used by verification tooling and tests.
func RecoverDecisionSigner(data map[string]any, chainID int64, verifyingContract, sigHex string) (common.Address, error) {
	digest, err := decisionDigest(data, chainID, verifyingContract)
	if err != nil {
		return common.Address{}, err
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, err
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("enclave: signature must be 65 bytes")
	}
	recovery := make([]byte, 65)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, recovery)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func decisionDigest(data map[string]any, chainID int64, verifyingContract string) ([]byte, error) {
	typed := apitypes.TypedData{
		Types:       decisionTypes,
		PrimaryType: "Decision",
		Domain: apitypes.TypedDataDomain{
			Name:              eip712DomainName,
			Version:           eip712DomainVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: verifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"id":               stringField(data, "id"),
			"user":             addressField(data, "user"),
			"action":           actionField(data),
			"asset":            stringField(data, "asset"),
			"amount":           amountField(data),
			"fromProtocol":     stringField(data, "fromProtocol"),
			"toProtocol":       stringField(data, "toProtocol"),
			"confidenceScore":  uintField(data, "confidenceScore"),
			"reasonsHash":      hashedStringField(data, "reasons"),
			"dataSourcesHash":  hashedStringField(data, "dataSources"),
			"alternativesHash": hashedStringField(data, "alternatives"),
			"onChainHash":      bytes32Field(data, "onChainHash"),
			"modelCidHash":     hashedStringField(data, "modelCid"),
			"xaiCidHash":       hashedStringField(data, "xaiCid"),
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, err
	}
	return digest, nil
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// hashedStringField pre-hashes a variable-length string into its bytes32
// slot. An empty string hashes to keccak256(""), not the zero hash, so
// absence is still a committed value.
func hashedStringField(data map[string]any, key string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(stringField(data, key))))
}

// bytes32Field uses a 64-hex-character value verbatim as raw bytes, keccak
// hashes any other non-empty value, and turns a missing/falsy value into
// 32 zero bytes.
func bytes32Field(data map[string]any, key string) string {
	raw := strings.TrimSpace(stringField(data, key))
	if raw == "" || raw == "0" || strings.EqualFold(raw, "false") {
		return hexutil.Encode(make([]byte, 32))
	}
	trimmed := strings.TrimPrefix(raw, "0x")
	if hex64Pattern.MatchString(trimmed) {
		return "0x" + strings.ToLower(trimmed)
	}
	return hexutil.Encode(crypto.Keccak256([]byte(raw)))
}

// addressField checksum-validates; anything malformed degrades to the zero
// address rather than failing the whole signature. Permissive on purpose
// (mock and test payloads carry placeholder users) but every substitution
// is logged so a typo'd recipient is at least visible.
func addressField(data map[string]any, key string) string {
	raw := strings.TrimSpace(stringField(data, key))
	if common.IsHexAddress(raw) {
		return common.HexToAddress(raw).Hex()
	}
	if raw != "" {
		logger.Warnf("enclave: field %q is not a valid address (%q), substituting zero address", key, raw)
	}
	return common.Address{}.Hex()
}

// amountField strips non-digit characters from string inputs before integer
// conversion ("1,500 wei" signs as 1500).
func amountField(data map[string]any) string {
	return convert.ToBigInt(data["amount"]).String()
}

func uintField(data map[string]any, key string) string {
	return convert.ToBigInt(data[key]).String()
}

// actionField maps the fixed enum when given a string, otherwise uses the
// numeric value as-is.
func actionField(data map[string]any) string {
	v, ok := data["action"]
	if !ok || v == nil {
		return "0"
	}
	if s, isStr := v.(string); isStr {
		if code, known := actionEnum[strings.ToUpper(strings.TrimSpace(s))]; known {
			return fmt.Sprintf("%d", code)
		}
		return convert.ToBigInt(s).String()
	}
	return convert.ToBigInt(v).String()
}
