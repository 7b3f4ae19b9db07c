// Package enclave holds the process signing identity and binds it to the
// hardware attestation path.
package enclave

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Mode string

const (
	ModeSimulation Mode = "simulation"
	ModeProduction Mode = "production"
)

var (
	// ErrAttestation: quote retrieval failed outside simulation. Fatal for
	// the decision being attested; never downgraded to simulated output.
	ErrAttestation = errors.New("enclave: attestation quote unavailable")
)

// Fixed, publicly known test key used in simulation mode so repeated test
// runs keep one on-chain registration. Never valid in production.
const simulationKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// Identity is the process-lifetime signing keypair. The private key lives
// only in this struct: it is never persisted, serialized or logged.
type Identity struct {
	mode    Mode
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewIdentity generates the keypair for this process. Production mode
// generates a fresh ephemeral key on every start; simulation loads the
// fixed test key.
func NewIdentity(mode Mode) (*Identity, error) {
	switch mode {
	case ModeSimulation, ModeProduction:
	default:
		return nil, fmt.Errorf("enclave: unknown mode %q", mode)
	}
	var key *ecdsa.PrivateKey
	var err error
	if mode == ModeSimulation {
		key, err = crypto.HexToECDSA(simulationKeyHex)
	} else {
		key, err = crypto.GenerateKey()
	}
	if err != nil {
		return nil, fmt.Errorf("enclave: keypair unavailable: %w", err)
	}
	return &Identity{
		mode:    mode,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (id *Identity) Mode() Mode { return id.mode }

// Address returns the public signing identity.
func (id *Identity) Address() common.Address { return id.address }

// PublicKeyHex returns the uncompressed public key, 0x-prefixed.
func (id *Identity) PublicKeyHex() string {
	return "0x" + strings.ToLower(fmt.Sprintf("%x", crypto.FromECDSAPub(&id.key.PublicKey)))
}

// ReportData is the nonce bound into the hardware quote: sha256 over the
// raw address bytes, linking "this quote" to "this signing key".
func (id *Identity) ReportData() [32]byte {
	return sha256.Sum256(id.address.Bytes())
}

// signDigest signs a 32-byte digest, returning a 65-byte [R||S||V]
// signature with V in EVM convention (27/28).
func (id *Identity) signDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("enclave: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, id.key)
	if err != nil {
		return nil, fmt.Errorf("enclave: signing failed: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
