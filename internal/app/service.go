package app

import (
	"context"
	"fmt"

	"notary/internal/chain"
	"notary/internal/config"
	"notary/internal/consensus"
	"notary/internal/enclave"
	"notary/internal/logger"
	"notary/internal/packet"
	"notary/internal/permission"
	"notary/internal/store/auditlog"
	"notary/internal/store/permstore"
	"notary/internal/transport/http/api"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Service wires the pipeline stages behind the HTTP surface. All writes to
// the audit trail happen here so transport stays thin.
type Service struct {
	cfg         *config.Config
	engine      *consensus.Engine
	enclave     *enclave.Service
	interceptor *packet.Interceptor
	guard       *chain.ReplayGuard
	cas         chain.CAS
	verifier    *chain.Verifier
	permissions *permission.Engine
	store       *permstore.Store
	audit       *auditlog.Store
}

func (s *Service) RunConsensus(ctx context.Context, task string) (consensus.ConsensusResult, error) {
	result, err := s.engine.Run(ctx, task)
	if err != nil {
		return consensus.ConsensusResult{}, err
	}
	logger.Auditf("consensus_run", "decision=%q method=%s compliance=%s confidence=%.2f",
		result.FinalDecision, result.Method, result.ComplianceStatus, result.OverallConfidence)
	if aerr := s.audit.Append(ctx, "consensus_run", "", result.FinalDecision, result.Method); aerr != nil {
		logger.Warnf("audit append failed: %v", aerr)
	}
	return result, nil
}

func (s *Service) InterceptDecision(ctx context.Context, req packet.InterceptRequest) (api.InterceptOutcome, error) {
	pkt, err := s.interceptor.Intercept(req)
	if err != nil {
		return api.InterceptOutcome{}, err
	}
	if err := s.guard.Check(ctx, pkt.DecisionID); err != nil {
		return api.InterceptOutcome{}, err
	}

	att, err := s.enclave.AttestDecision(ctx, s.decisionData(pkt, req))
	if err != nil {
		return api.InterceptOutcome{}, err
	}

	canonical, err := pkt.CanonicalJSON()
	if err != nil {
		return api.InterceptOutcome{}, err
	}
	contentID, err := s.cas.Upload(ctx, []byte(canonical))
	if err != nil {
		return api.InterceptOutcome{}, fmt.Errorf("content upload: %w", err)
	}

	calldata, err := chain.BuildLogDecisionCalldata(chain.LogDecisionCall{
		DecisionID:    pkt.DecisionID,
		DecisionHash:  pkt.DecisionHash,
		ModelHash:     pkt.ModelHash,
		FTSORoundID:   pkt.FTSORoundID,
		FDCProofHash:  pkt.FDCProofHash,
		Timestamp:     pkt.Timestamp,
		BackendSigner: pkt.BackendSigner,
	})
	if err != nil {
		return api.InterceptOutcome{}, err
	}

	if err := s.store.SaveDecisionRecord(ctx, permstore.DecisionRecord{
		DecisionID: pkt.DecisionID,
		ContentID:  contentID,
		Packet:     []byte(canonical),
	}); err != nil {
		return api.InterceptOutcome{}, fmt.Errorf("decision record: %w", err)
	}

	logger.Auditf("decision_intercept", "decision=%s wallet=%s action=%s certification=%s",
		pkt.DecisionID, pkt.WalletAddress, pkt.AIAction, att.CertificationStatus)
	if aerr := s.audit.Append(ctx, "decision_intercept", pkt.WalletAddress, pkt.DecisionID, pkt.Subject); aerr != nil {
		logger.Warnf("audit append failed: %v", aerr)
	}

	return api.InterceptOutcome{
		Packet:      pkt,
		Attestation: att,
		ContentID:   contentID,
		Calldata:    hexutil.Encode(calldata),
	}, nil
}

// decisionData builds the typed-data payload from the packet plus whatever
// structured fields the caller supplied in the transaction document.
func (s *Service) decisionData(pkt packet.DecisionPacket, req packet.InterceptRequest) map[string]any {
	data := map[string]any{
		"id":          pkt.DecisionID,
		"user":        pkt.WalletAddress,
		"action":      pkt.AIAction,
		"onChainHash": pkt.DecisionHash,
		"modelCid":    s.engine.ModelCID(),
	}
	for dst, src := range map[string]string{
		"asset":           "asset",
		"amount":          "amount",
		"fromProtocol":    "from_protocol",
		"toProtocol":      "to_protocol",
		"confidenceScore": "confidence_score",
		"reasons":         "reasons",
		"dataSources":     "data_sources",
		"alternatives":    "alternatives",
		"xaiCid":          "xai_cid",
	} {
		if v, ok := req.TransactionData[src]; ok {
			data[dst] = v
		}
	}
	return data
}

func (s *Service) EvaluateTransaction(ctx context.Context, tx permission.Transaction, walletID string) (api.EvaluationOutcome, error) {
	action, violations, err := s.permissions.Evaluate(ctx, tx, walletID)
	if err != nil {
		return api.EvaluationOutcome{}, err
	}
	if action != permission.ActionAllow {
		logger.Auditf("transaction_evaluate", "wallet=%s tx=%s action=%s violations=%d",
			walletID, tx.Hash, action, len(violations))
		if aerr := s.audit.Append(ctx, "transaction_evaluate", walletID, tx.Hash, action); aerr != nil {
			logger.Warnf("audit append failed: %v", aerr)
		}
	}
	return api.EvaluationOutcome{Action: action, Violations: violations}, nil
}

func (s *Service) RecordTransaction(ctx context.Context, tx permission.Transaction, walletID string) error {
	if err := s.permissions.RecordExecuted(ctx, tx, walletID); err != nil {
		return err
	}
	if aerr := s.audit.Append(ctx, "transaction_record", walletID, tx.Hash, tx.To); aerr != nil {
		logger.Warnf("audit append failed: %v", aerr)
	}
	return nil
}

func (s *Service) VerifyDecision(ctx context.Context, decisionID string) (chain.VerifyResult, error) {
	rec, err := s.store.DecisionRecord(ctx, decisionID)
	if err != nil {
		return chain.VerifyResult{}, err
	}
	result, err := s.verifier.Verify(ctx, decisionID, rec.ContentID)
	if err != nil {
		return chain.VerifyResult{}, err
	}
	if aerr := s.audit.Append(ctx, "decision_verify", "", decisionID, result.Status); aerr != nil {
		logger.Warnf("audit append failed: %v", aerr)
	}
	return result, nil
}

func (s *Service) RecentAudit(ctx context.Context, limit int) ([]auditlog.Entry, error) {
	return s.audit.Recent(ctx, limit)
}
