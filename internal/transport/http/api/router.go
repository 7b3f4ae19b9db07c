package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"notary/internal/chain"
	"notary/internal/consensus"
	"notary/internal/enclave"
	"notary/internal/packet"
	"notary/internal/permission"
	"notary/internal/store/auditlog"
	"notary/internal/store/permstore"

	"github.com/gin-gonic/gin"
)

// InterceptOutcome is the full artifact set for one intercepted decision.
type InterceptOutcome struct {
	Packet      packet.DecisionPacket `json:"packet"`
	Attestation enclave.Attestation   `json:"attestation"`
	ContentID   string                `json:"content_id"`
	Calldata    string                `json:"calldata"`
}

// EvaluationOutcome reports one permission engine run.
type EvaluationOutcome struct {
	Action     string                 `json:"action"`
	Violations []permission.Violation `json:"violations"`
}

// Service is the pipeline surface the HTTP layer exposes.
type Service interface {
	RunConsensus(ctx context.Context, task string) (consensus.ConsensusResult, error)
	InterceptDecision(ctx context.Context, req packet.InterceptRequest) (InterceptOutcome, error)
	EvaluateTransaction(ctx context.Context, tx permission.Transaction, walletID string) (EvaluationOutcome, error)
	RecordTransaction(ctx context.Context, tx permission.Transaction, walletID string) error
	VerifyDecision(ctx context.Context, decisionID string) (chain.VerifyResult, error)
	RecentAudit(ctx context.Context, limit int) ([]auditlog.Entry, error)
}

// Router registers the v1 API routes.
type Router struct {
	svc Service
}

func NewRouter(svc Service) *Router {
	return &Router{svc: svc}
}

func (r *Router) Register(g *gin.RouterGroup) {
	g.POST("/consensus/run", r.handleConsensusRun)
	g.POST("/decisions/intercept", r.handleIntercept)
	g.GET("/decisions/:id/verify", r.handleVerify)
	g.POST("/transactions/evaluate", r.handleEvaluate)
	g.POST("/transactions/record", r.handleRecord)
	g.GET("/audit/recent", r.handleAuditRecent)
}

type consensusRunRequest struct {
	Task string `json:"task" binding:"required"`
}

func (r *Router) handleConsensusRun(c *gin.Context) {
	var req consensusRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := r.svc.RunConsensus(c.Request.Context(), req.Task)
	if err != nil {
		if errors.Is(err, consensus.ErrNoPredictions) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type interceptRequest struct {
	WalletAddress   string         `json:"wallet_address"`
	AIAction        string         `json:"ai_action" binding:"required"`
	UserInput       string         `json:"user_input"`
	AIResponseText  string         `json:"ai_response_text"`
	TransactionData map[string]any `json:"transaction_data"`
	ModelID         string         `json:"model_id"`
	FTSOFeedID      string         `json:"ftso_feed_id"`
	FTSORoundID     uint64         `json:"ftso_round_id"`
	FDCProofHash    string         `json:"fdc_proof_hash"`
	DecisionID      string         `json:"decision_id"`
}

func (r *Router) handleIntercept(c *gin.Context) {
	var req interceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := r.svc.InterceptDecision(c.Request.Context(), packet.InterceptRequest{
		WalletAddress:   req.WalletAddress,
		AIAction:        req.AIAction,
		UserInput:       req.UserInput,
		AIResponseText:  req.AIResponseText,
		TransactionData: req.TransactionData,
		ModelID:         req.ModelID,
		FTSOFeedID:      req.FTSOFeedID,
		FTSORoundID:     req.FTSORoundID,
		FDCProofHash:    req.FDCProofHash,
		DecisionID:      req.DecisionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, chain.ErrAlreadyLogged):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, enclave.ErrAttestation):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (r *Router) handleVerify(c *gin.Context) {
	decisionID := strings.TrimSpace(c.Param("id"))
	result, err := r.svc.VerifyDecision(c.Request.Context(), decisionID)
	if err != nil {
		if errors.Is(err, permstore.ErrDecisionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type evaluateRequest struct {
	WalletID    string                 `json:"wallet_id" binding:"required"`
	Transaction permission.Transaction `json:"transaction"`
}

func (r *Router) handleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := r.svc.EvaluateTransaction(c.Request.Context(), req.Transaction, req.WalletID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (r *Router) handleRecord(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.svc.RecordTransaction(c.Request.Context(), req.Transaction, req.WalletID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (r *Router) handleAuditRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := r.svc.RecentAudit(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
