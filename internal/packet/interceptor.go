package packet

import (
	"fmt"
	"strings"
	"time"

	"notary/internal/pkg/text"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

const subjectMaxLen = 50

// InterceptRequest carries everything the interceptor needs to pin one
// decision event. TransactionData is the raw transaction object the user is
// being asked to sign, as a string-keyed document.
type InterceptRequest struct {
	WalletAddress   string
	AIAction        string
	UserInput       string
	AIResponseText  string
	TransactionData map[string]any
	ModelID         string
	FTSOFeedID      string
	FTSORoundID     uint64
	FDCProofHash    string
	DecisionID      string // optional; preserved verbatim for session continuity
}

// Interceptor builds decision packets immediately after policy evaluation.
type Interceptor struct {
	BackendSigner string
}

// Intercept binds exactly what the user saw and would sign (response text
// plus transaction) into decision_hash, and the producing model into
// model_hash. A caller-supplied DecisionID is kept verbatim so repeated
// turns in one session commit to one logical decision identity.
func (ic *Interceptor) Intercept(req InterceptRequest) (DecisionPacket, error) {
	if strings.TrimSpace(req.AIAction) == "" {
		return DecisionPacket{}, fmt.Errorf("packet: ai_action is required")
	}
	decisionID := strings.TrimSpace(req.DecisionID)
	if decisionID == "" {
		decisionID = uuid.NewString()
	}

	decisionHash, err := HashSortedJSON(map[string]any{
		"text":        req.AIResponseText,
		"transaction": req.TransactionData,
	})
	if err != nil {
		return DecisionPacket{}, err
	}
	modelHash := hexutil.Encode(crypto.Keccak256([]byte(req.ModelID + ":" + req.AIAction)))

	return DecisionPacket{
		DecisionID:    decisionID,
		WalletAddress: req.WalletAddress,
		AIAction:      req.AIAction,
		InputSummary:  text.Sanitize(req.UserInput),
		DecisionHash:  decisionHash,
		ModelHash:     modelHash,
		FTSOFeedID:    req.FTSOFeedID,
		FTSORoundID:   req.FTSORoundID,
		FDCProofHash:  req.FDCProofHash,
		Timestamp:     uint64(time.Now().Unix()),
		BackendSigner: ic.BackendSigner,
		Subject:       text.Truncate(text.Sanitize(req.UserInput), subjectMaxLen),
	}, nil
}
