package enclave

import (
	"context"
	"fmt"

	"notary/internal/logger"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// QuoteProvider fetches a hardware attestation token with the given nonces
// bound into the quote's report data.
type QuoteProvider interface {
	GetToken(ctx context.Context, nonces [][]byte, audience, tokenType string) (string, error)
}

const (
	attestationVersion = "1.0"
	teeProviderName    = "gcp-confidential-space"
	tokenTypeOIDC      = "OIDC"

	// Substituted for the real token in simulation mode when no TEE is
	// reachable. Verifiers treat it as explicitly uncertified.
	simulatedToken = "SIMULATED_ATTESTATION_TOKEN"

	CertificationAttested  = "attested"
	CertificationSimulated = "simulated"
)

// Quote carries the raw hardware evidence plus the key binding material.
type Quote struct {
	Token            string `json:"token"`
	ReportData       string `json:"report_data"`
	EnclavePublicKey string `json:"enclave_public_key"`
}

// Attestation is the full signed evidence bundle for one decision.
type Attestation struct {
	Version             string `json:"version"`
	TEEProvider         string `json:"tee_provider"`
	Quote               Quote  `json:"quote"`
	Signature           string `json:"signature"`
	CertificationStatus string `json:"certification_status"`
}

// Service binds decision signatures to enclave evidence.
type Service struct {
	identity          *Identity
	provider          QuoteProvider
	audience          string
	chainID           int64
	verifyingContract string
}

func NewService(identity *Identity, provider QuoteProvider, audience string, chainID int64, verifyingContract string) *Service {
	return &Service{
		identity:          identity,
		provider:          provider,
		audience:          audience,
		chainID:           chainID,
		verifyingContract: verifyingContract,
	}
}

func (s *Service) Identity() *Identity { return s.identity }

// AttestDecision signs the decision payload under the enclave key and wraps
// the signature in a quote whose report data commits to that same key.
// Simulation mode degrades a failed quote fetch to a sentinel token;
// production never does. An unattestable production decision is an error,
// not a decision with weaker evidence.
func (s *Service) AttestDecision(ctx context.Context, decision map[string]any) (Attestation, error) {
	sig, err := s.identity.SignDecision(decision, s.chainID, s.verifyingContract)
	if err != nil {
		return Attestation{}, err
	}
	report := s.identity.ReportData()
	att := Attestation{
		Version:     attestationVersion,
		TEEProvider: teeProviderName,
		Quote: Quote{
			ReportData:       hexutil.Encode(report[:]),
			EnclavePublicKey: s.identity.PublicKeyHex(),
		},
		Signature:           sig,
		CertificationStatus: CertificationAttested,
	}

	token, err := s.provider.GetToken(ctx, [][]byte{report[:]}, s.audience, tokenTypeOIDC)
	if err != nil {
		if s.identity.Mode() == ModeProduction {
			return Attestation{}, fmt.Errorf("%w: %v", ErrAttestation, err)
		}
		logger.Warnf("attestation quote unavailable in simulation mode, substituting sentinel token: %v", err)
		token = simulatedToken
	}
	att.Quote.Token = token
	if token == simulatedToken || s.identity.Mode() == ModeSimulation {
		att.CertificationStatus = CertificationSimulated
	}
	return att, nil
}
