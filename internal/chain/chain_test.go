package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDecisionID = "c3c0e8f0-1111-4222-8333-444455556666"
	testSigner     = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

func TestDecisionIDToBytes32(t *testing.T) {
	t.Run("uuid left-pads into the slot", func(t *testing.T) {
		got, err := DecisionIDToBytes32(testDecisionID)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(got[:16], make([]byte, 16)), "top half must be zero")
		assert.Equal(t, byte(0xc3), got[16])
		assert.Equal(t, byte(0x66), got[31])
	})

	t.Run("non uuid refused", func(t *testing.T) {
		_, err := DecisionIDToBytes32("not-a-uuid")
		assert.Error(t, err)
	})
}

func TestBuildLogDecisionCalldata(t *testing.T) {
	call := LogDecisionCall{
		DecisionID:    testDecisionID,
		DecisionHash:  "0x" + strings.Repeat("ab", 32),
		ModelHash:     "0x" + strings.Repeat("cd", 32),
		FTSORoundID:   812345,
		Timestamp:     1735689600,
		BackendSigner: testSigner,
	}

	t.Run("selector and layout", func(t *testing.T) {
		data, err := BuildLogDecisionCalldata(call)
		require.NoError(t, err)
		sig := "logDecision(bytes32,bytes32,bytes32,uint256,bytes32,uint256,address)"
		assert.Equal(t, crypto.Keccak256([]byte(sig))[:4], data[:4])
		assert.Len(t, data, 4+7*32)
	})

	t.Run("absent proof hash encodes as zero", func(t *testing.T) {
		data, err := BuildLogDecisionCalldata(call)
		require.NoError(t, err)
		proofWord := data[4+4*32 : 4+5*32]
		assert.True(t, bytes.Equal(proofWord, make([]byte, 32)))
	})

	t.Run("proof hash carried when present", func(t *testing.T) {
		c := call
		c.FDCProofHash = "0x" + strings.Repeat("ef", 32)
		data, err := BuildLogDecisionCalldata(c)
		require.NoError(t, err)
		proofWord := data[4+4*32 : 4+5*32]
		assert.Equal(t, bytes.Repeat([]byte{0xef}, 32), proofWord)
	})

	t.Run("short hash refused", func(t *testing.T) {
		c := call
		c.DecisionHash = "0xabcd"
		_, err := BuildLogDecisionCalldata(c)
		assert.Error(t, err)
	})
}

// fakeCaller replays canned ABI-encoded outputs keyed by method selector.
type fakeCaller struct {
	responses map[string][]byte
	err       error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.responses[hexutil.Encode(msg.Data[:4])]
	if !ok {
		return nil, errors.New("unexpected call")
	}
	return out, nil
}

func packOutputs(t *testing.T, method string, values ...any) []byte {
	t.Helper()
	parsed, err := loadRegistryABI()
	require.NoError(t, err)
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

func selectorOf(t *testing.T, method string) string {
	t.Helper()
	parsed, err := loadRegistryABI()
	require.NoError(t, err)
	return hexutil.Encode(parsed.Methods[method].ID)
}

func TestRegistry(t *testing.T) {
	t.Run("isDecisionLogged decodes the flag", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string][]byte{
			selectorOf(t, "isDecisionLogged"): packOutputs(t, "isDecisionLogged", true),
		}}
		r := NewRegistry(caller, testSigner)
		logged, err := r.IsDecisionLogged(context.Background(), testDecisionID)
		require.NoError(t, err)
		assert.True(t, logged)
	})

	t.Run("decision row decodes all fields", func(t *testing.T) {
		id, err := DecisionIDToBytes32(testDecisionID)
		require.NoError(t, err)
		var cid, domain, model [32]byte
		copy(cid[:], bytes.Repeat([]byte{0x11}, 32))
		copy(domain[:], bytes.Repeat([]byte{0x22}, 32))
		copy(model[:], bytes.Repeat([]byte{0x33}, 32))

		caller := &fakeCaller{responses: map[string][]byte{
			selectorOf(t, "decisions"): packOutputs(t, "decisions",
				id, cid, domain, model, "move funds", big.NewInt(1735689600)),
		}}
		r := NewRegistry(caller, testSigner)
		rec, err := r.Decision(context.Background(), testDecisionID)
		require.NoError(t, err)
		assert.Equal(t, hexutil.Encode(cid[:]), rec.IPFSCidHash)
		assert.Equal(t, "move funds", rec.Subject)
		assert.Equal(t, uint64(1735689600), rec.Timestamp)
	})

	t.Run("rpc error surfaces", func(t *testing.T) {
		r := NewRegistry(&fakeCaller{err: errors.New("connection refused")}, testSigner)
		_, err := r.IsDecisionLogged(context.Background(), testDecisionID)
		assert.Error(t, err)
	})
}

type fakeReader struct {
	logged bool
	rec    RegistryRecord
	err    error
	calls  int
}

func (f *fakeReader) IsDecisionLogged(context.Context, string) (bool, error) {
	f.calls++
	return f.logged, f.err
}

func (f *fakeReader) Decision(context.Context, string) (RegistryRecord, error) {
	return f.rec, f.err
}

func TestReplayGuard(t *testing.T) {
	t.Run("positive hit blocks the commit", func(t *testing.T) {
		g := NewReplayGuard(&fakeReader{logged: true}, 3, time.Minute)
		err := g.Check(context.Background(), testDecisionID)
		assert.ErrorIs(t, err, ErrAlreadyLogged)
	})

	t.Run("clean check passes", func(t *testing.T) {
		g := NewReplayGuard(&fakeReader{}, 3, time.Minute)
		assert.NoError(t, g.Check(context.Background(), testDecisionID))
	})

	t.Run("rpc failure fails open", func(t *testing.T) {
		g := NewReplayGuard(&fakeReader{err: errors.New("rpc down")}, 3, time.Minute)
		assert.NoError(t, g.Check(context.Background(), testDecisionID))
	})

	t.Run("open breaker skips the read entirely", func(t *testing.T) {
		reader := &fakeReader{err: errors.New("rpc down")}
		g := NewReplayGuard(reader, 1, time.Minute)
		require.NoError(t, g.Check(context.Background(), testDecisionID))
		require.NoError(t, g.Check(context.Background(), testDecisionID))
		assert.Equal(t, 1, reader.calls, "second check must not reach the rpc")
	})
}

func TestVerifier(t *testing.T) {
	ctx := context.Background()
	content := []byte(`{"decision":"approve"}`)
	contentHash := hexutil.Encode(crypto.Keccak256(content))

	upload := func(t *testing.T) (*MemoryCAS, string) {
		t.Helper()
		cas := NewMemoryCAS()
		cid, err := cas.Upload(ctx, content)
		require.NoError(t, err)
		return cas, cid
	}

	t.Run("verified when hashes agree", func(t *testing.T) {
		cas, cid := upload(t)
		v := NewVerifier(&fakeReader{rec: RegistryRecord{IPFSCidHash: contentHash, Timestamp: 1}}, cas)
		res, err := v.Verify(ctx, testDecisionID, cid)
		require.NoError(t, err)
		assert.Equal(t, StatusVerified, res.Status)
		assert.Equal(t, contentHash, res.ComputedHash)
	})

	t.Run("hash mismatch when chain disagrees", func(t *testing.T) {
		cas, cid := upload(t)
		other := hexutil.Encode(crypto.Keccak256([]byte("tampered")))
		v := NewVerifier(&fakeReader{rec: RegistryRecord{IPFSCidHash: other, Timestamp: 1}}, cas)
		res, err := v.Verify(ctx, testDecisionID, cid)
		require.NoError(t, err)
		assert.Equal(t, StatusHashMismatch, res.Status)
	})

	t.Run("zero timestamp means not found", func(t *testing.T) {
		cas, cid := upload(t)
		v := NewVerifier(&fakeReader{rec: RegistryRecord{}}, cas)
		res, err := v.Verify(ctx, testDecisionID, cid)
		require.NoError(t, err)
		assert.Equal(t, StatusNotFound, res.Status)
	})

	t.Run("missing content is fetch failed not an error", func(t *testing.T) {
		v := NewVerifier(&fakeReader{rec: RegistryRecord{IPFSCidHash: contentHash, Timestamp: 1}}, NewMemoryCAS())
		res, err := v.Verify(ctx, testDecisionID, "deadbeef")
		require.NoError(t, err)
		assert.Equal(t, StatusFetchFailed, res.Status)
	})

	t.Run("registry error surfaces", func(t *testing.T) {
		v := NewVerifier(&fakeReader{err: errors.New("rpc down")}, NewMemoryCAS())
		_, err := v.Verify(ctx, testDecisionID, "deadbeef")
		assert.Error(t, err)
	})
}
