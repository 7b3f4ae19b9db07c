package packet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePacket() DecisionPacket {
	return DecisionPacket{
		DecisionID:    "c3c0e8f0-1111-4222-8333-444455556666",
		WalletAddress: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		AIAction:      "REALLOCATE",
		InputSummary:  "move idle USDC to the better rate",
		DecisionHash:  "0x" + strings.Repeat("ab", 32),
		ModelHash:     "0x" + strings.Repeat("cd", 32),
		FTSOFeedID:    "0x015553444300000000000000000000000000000000",
		FTSORoundID:   812345,
		Timestamp:     1735689600,
		BackendSigner: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Subject:       "move idle USDC to the better rate",
	}
}

func TestCanonicalJSON(t *testing.T) {
	t.Run("keys are sorted and compact", func(t *testing.T) {
		canonical, err := samplePacket().CanonicalJSON()
		require.NoError(t, err)
		assert.NotContains(t, canonical, " \"")
		assert.Less(t,
			strings.Index(canonical, `"ai_action"`),
			strings.Index(canonical, `"backend_signer"`))
		assert.Less(t,
			strings.Index(canonical, `"timestamp"`),
			strings.Index(canonical, `"wallet_address"`))
	})

	t.Run("equal packets encode identically", func(t *testing.T) {
		a, err := samplePacket().CanonicalJSON()
		require.NoError(t, err)
		b, err := samplePacket().CanonicalJSON()
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestPacketHash(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		h1, err := samplePacket().Hash()
		require.NoError(t, err)
		h2, err := samplePacket().Hash()
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
		assert.True(t, strings.HasPrefix(h1, "0x"))
		assert.Len(t, h1, 66)
	})

	t.Run("any field change changes the hash", func(t *testing.T) {
		base, err := samplePacket().Hash()
		require.NoError(t, err)

		mutations := map[string]func(*DecisionPacket){
			"decision_id":   func(p *DecisionPacket) { p.DecisionID = "other" },
			"ai_action":     func(p *DecisionPacket) { p.AIAction = "HOLD" },
			"ftso_round_id": func(p *DecisionPacket) { p.FTSORoundID++ },
			"timestamp":     func(p *DecisionPacket) { p.Timestamp++ },
			"subject":       func(p *DecisionPacket) { p.Subject = "x" },
		}
		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				p := samplePacket()
				mutate(&p)
				h, err := p.Hash()
				require.NoError(t, err)
				assert.NotEqual(t, base, h)
			})
		}
	})
}

func TestIntercept(t *testing.T) {
	ic := &Interceptor{BackendSigner: "0x5FbDB2315678afecb367f032d93F642f64180aa3"}
	req := InterceptRequest{
		WalletAddress:  "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		AIAction:       "ALLOCATE",
		UserInput:      "please  move\tmy funds",
		AIResponseText: "Moving 100 USDC to compound",
		TransactionData: map[string]any{
			"to":    "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			"value": "0",
		},
		ModelID: "gpt-4o",
	}

	t.Run("missing action refused", func(t *testing.T) {
		_, err := ic.Intercept(InterceptRequest{UserInput: "hi"})
		assert.Error(t, err)
	})

	t.Run("generates a decision id when absent", func(t *testing.T) {
		p, err := ic.Intercept(req)
		require.NoError(t, err)
		assert.NotEmpty(t, p.DecisionID)
		assert.Equal(t, ic.BackendSigner, p.BackendSigner)
	})

	t.Run("caller decision id preserved verbatim", func(t *testing.T) {
		r := req
		r.DecisionID = "session-decision-7"
		p, err := ic.Intercept(r)
		require.NoError(t, err)
		assert.Equal(t, "session-decision-7", p.DecisionID)
	})

	t.Run("decision hash binds response text and transaction", func(t *testing.T) {
		p1, err := ic.Intercept(req)
		require.NoError(t, err)

		r := req
		r.AIResponseText = "Moving 100 USDC to aave"
		p2, err := ic.Intercept(r)
		require.NoError(t, err)
		assert.NotEqual(t, p1.DecisionHash, p2.DecisionHash)

		r = req
		r.TransactionData = map[string]any{"to": "0x0", "value": "1"}
		p3, err := ic.Intercept(r)
		require.NoError(t, err)
		assert.NotEqual(t, p1.DecisionHash, p3.DecisionHash)
	})

	t.Run("model hash binds model and action", func(t *testing.T) {
		p1, err := ic.Intercept(req)
		require.NoError(t, err)
		r := req
		r.ModelID = "gpt-4o-mini"
		p2, err := ic.Intercept(r)
		require.NoError(t, err)
		assert.NotEqual(t, p1.ModelHash, p2.ModelHash)
	})

	t.Run("subject is sanitized and truncated", func(t *testing.T) {
		r := req
		r.UserInput = strings.Repeat("a", 80)
		p, err := ic.Intercept(r)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("a", 50)+"...", p.Subject)

		p2, err := ic.Intercept(req)
		require.NoError(t, err)
		assert.Equal(t, "please move my funds", p2.InputSummary)
	})
}
