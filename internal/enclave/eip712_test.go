package enclave

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func decisionFixture() map[string]any {
	return map[string]any{
		"id":              "dec-001",
		"user":            "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"action":          "REALLOCATE",
		"asset":           "USDC",
		"amount":          "1,500 wei",
		"fromProtocol":    "aave",
		"toProtocol":      "compound",
		"confidenceScore": 87,
		"reasons":         "better lending rate",
		"dataSources":     "ftso",
	}
}

func TestSignDecisionRoundTrip(t *testing.T) {
	id, err := NewIdentity(ModeSimulation)
	require.NoError(t, err)

	sig, err := id.SignDecision(decisionFixture(), 14, testContract)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, hexutil.MustDecode(sig), 65)

	recovered, err := RecoverDecisionSigner(decisionFixture(), 14, testContract, sig)
	require.NoError(t, err)
	assert.Equal(t, id.Address(), recovered)
}

func TestSignDecisionDomainSeparation(t *testing.T) {
	id, err := NewIdentity(ModeSimulation)
	require.NoError(t, err)

	sig14, err := id.SignDecision(decisionFixture(), 14, testContract)
	require.NoError(t, err)
	sig16, err := id.SignDecision(decisionFixture(), 16, testContract)
	require.NoError(t, err)
	assert.NotEqual(t, sig14, sig16, "chain id must separate signatures")
}

func TestSimulationIdentityIsFixed(t *testing.T) {
	a, err := NewIdentity(ModeSimulation)
	require.NoError(t, err)
	b, err := NewIdentity(ModeSimulation)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())
}

func TestProductionIdentityIsEphemeral(t *testing.T) {
	a, err := NewIdentity(ModeProduction)
	require.NoError(t, err)
	b, err := NewIdentity(ModeProduction)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), b.Address())
}

func TestFieldCoercion(t *testing.T) {
	t.Run("hashed string fields commit to keccak of utf8", func(t *testing.T) {
		got := hashedStringField(map[string]any{"reasons": "abc"}, "reasons")
		assert.Equal(t, hexutil.Encode(crypto.Keccak256([]byte("abc"))), got)
	})

	t.Run("empty string hashes to keccak of empty, not zero", func(t *testing.T) {
		got := hashedStringField(map[string]any{}, "reasons")
		assert.Equal(t, hexutil.Encode(crypto.Keccak256(nil)), got)
		assert.NotEqual(t, hexutil.Encode(make([]byte, 32)), got)
	})

	t.Run("64 hex chars pass through verbatim", func(t *testing.T) {
		raw := strings.Repeat("AB", 32)
		got := bytes32Field(map[string]any{"onChainHash": "0x" + raw}, "onChainHash")
		assert.Equal(t, "0x"+strings.ToLower(raw), got)
	})

	t.Run("other values are keccak hashed", func(t *testing.T) {
		got := bytes32Field(map[string]any{"onChainHash": "not-a-hash"}, "onChainHash")
		assert.Equal(t, hexutil.Encode(crypto.Keccak256([]byte("not-a-hash"))), got)
	})

	t.Run("missing bytes32 becomes 32 zero bytes", func(t *testing.T) {
		got := bytes32Field(map[string]any{}, "onChainHash")
		assert.Equal(t, hexutil.Encode(make([]byte, 32)), got)
	})

	t.Run("malformed address degrades to zero address", func(t *testing.T) {
		got := addressField(map[string]any{"user": "0xZZ"}, "user")
		assert.Equal(t, "0x0000000000000000000000000000000000000000", got)
	})

	t.Run("amount strips non-digits", func(t *testing.T) {
		assert.Equal(t, "1500", amountField(map[string]any{"amount": "1,500 wei"}))
	})

	t.Run("action enum maps strings", func(t *testing.T) {
		assert.Equal(t, "0", actionField(map[string]any{"action": "ALLOCATE"}))
		assert.Equal(t, "2", actionField(map[string]any{"action": "deallocate"}))
		assert.Equal(t, "3", actionField(map[string]any{"action": "HOLD"}))
		assert.Equal(t, "1", actionField(map[string]any{"action": 1}))
	})
}
