package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"notary/internal/chain"
	"notary/internal/config"
	"notary/internal/consensus"
	"notary/internal/enclave"
	"notary/internal/gateway/provider"
	"notary/internal/gateway/tee"
	"notary/internal/logger"
	"notary/internal/packet"
	"notary/internal/permission"
	"notary/internal/store/auditlog"
	"notary/internal/store/permstore"
	"notary/internal/transport/http/api"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
)

// AppBuilder assembles the process. The fn fields exist so tests can swap
// individual stages without standing up real backends.
type AppBuilder struct {
	cfg *config.Config

	quoteProviderFn func(*config.Config) enclave.QuoteProvider
	callerFn        func(*config.Config) (chain.ContractCaller, error)
	casFn           func(*config.Config) chain.CAS
	agentsFn        func(*config.Config) ([]consensus.Profile, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:             cfg,
		quoteProviderFn: buildQuoteProvider,
		callerFn:        buildContractCaller,
		casFn:           func(*config.Config) chain.CAS { return chain.NewMemoryCAS() },
		agentsFn:        buildAgentProfiles,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	mode := enclave.ModeSimulation
	if cfg.Enclave.IsProduction() {
		mode = enclave.ModeProduction
	}
	identity, err := enclave.NewIdentity(mode)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ enclave identity ready mode=%s address=%s", mode, identity.Address().Hex())

	quotes := b.quoteProviderFn(cfg)
	enclaveSvc := enclave.NewService(identity, quotes, cfg.Enclave.TEEAudience, cfg.Enclave.ChainID, cfg.Enclave.VerifyingContract)
	if mode == enclave.ModeProduction {
		// Production refuses to start unless the hardware quote path is
		// provably reachable. Simulation never performs this probe.
		report := identity.ReportData()
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		_, probeErr := quotes.GetToken(probeCtx, [][]byte{report[:]}, cfg.Enclave.TEEAudience, "OIDC")
		cancel()
		if probeErr != nil {
			return nil, fmt.Errorf("%w: startup probe failed: %v", enclave.ErrAttestation, probeErr)
		}
		logger.Infof("✓ attestation path verified via startup quote probe")
	}

	profiles, err := b.agentsFn(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := consensus.NewEngine(cfg, profiles)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ consensus engine ready agents=%d aggregation=%s model_cid=%s",
		len(profiles), cfg.Consensus.Aggregation, engine.ModelCID())

	caller, err := b.callerFn(cfg)
	if err != nil {
		return nil, err
	}
	registry := chain.NewRegistry(caller, cfg.Chain.RegistryAddress)
	guard := chain.NewReplayGuard(registry, cfg.Chain.BreakerThreshold,
		time.Duration(cfg.Chain.BreakerTimeoutSeconds)*time.Second)
	cas := b.casFn(cfg)
	verifier := chain.NewVerifier(registry, cas)

	store, err := permstore.New(cfg.Permission.HistoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	audit, err := auditlog.New(cfg.Permission.AuditDBPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("audit store: %w", err)
	}
	policyRegistry, err := permission.NewRegistry(cfg.Permission.PoliciesPath)
	if err != nil {
		store.Close()
		audit.Close()
		return nil, fmt.Errorf("policy registry: %w", err)
	}
	permEngine := permission.NewEngine(policyRegistry, store, cfg.Permission.RetentionDays)

	svc := &Service{
		cfg:         cfg,
		engine:      engine,
		enclave:     enclaveSvc,
		interceptor: &packet.Interceptor{BackendSigner: identity.Address().Hex()},
		guard:       guard,
		cas:         cas,
		verifier:    verifier,
		permissions: permEngine,
		store:       store,
		audit:       audit,
	}
	server, err := api.NewServer(api.ServerConfig{Addr: cfg.App.HTTPAddr, Service: svc})
	if err != nil {
		store.Close()
		audit.Close()
		return nil, err
	}

	return &App{
		cfg:    cfg,
		svc:    svc,
		server: server,
		store:  store,
		audit:  audit,
	}, nil
}

func buildQuoteProvider(cfg *config.Config) enclave.QuoteProvider {
	if cfg.Enclave.IsProduction() {
		return tee.NewClient(cfg.Enclave.TEESocket)
	}
	return tee.SimulatedProvider{}
}

// offlineCaller serves deployments without an RPC endpoint. Replay checks
// degrade fail-open through the guard; verification reports the outage.
type offlineCaller struct{}

func (offlineCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, fmt.Errorf("chain: no rpc endpoint configured")
}

func buildContractCaller(cfg *config.Config) (chain.ContractCaller, error) {
	endpoint := strings.TrimSpace(cfg.Chain.RPCEndpoint)
	if endpoint == "" {
		logger.Warnf("chain.rpc_endpoint not set, registry reads are offline")
		return offlineCaller{}, nil
	}
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("chain rpc dial: %w", err)
	}
	return client, nil
}

func buildAgentProfiles(cfg *config.Config) ([]consensus.Profile, error) {
	var profiles []consensus.Profile
	for _, ac := range cfg.Consensus.Agents {
		if !ac.Enabled {
			logger.Infof("agent %s disabled, skipping", ac.ID)
			continue
		}
		client := &provider.OpenAIChatClient{
			BaseURL: ac.BaseURL,
			APIKey:  ac.APIKey,
			Model:   ac.Model,
			Timeout: time.Duration(ac.TimeoutSeconds) * time.Second,
		}
		mp := provider.NewChatModelProvider(ac.ID, true, ac.SystemPrompt, client)
		profiles = append(profiles, consensus.Profile{
			Agent: &consensus.TextAgent{
				AgentID: ac.ID,
				Invoke: func(ctx context.Context, task string) (string, error) {
					return mp.Call(ctx, "", task)
				},
			},
			Weight:    ac.Weight,
			Expertise: ac.Expertise,
		})
	}
	if len(profiles) == 0 {
		return nil, consensus.ErrNoAgents
	}
	return profiles, nil
}
