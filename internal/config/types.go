package config

import "strings"

// Config is the main configuration carrier for notary.
type Config struct {
	App        AppConfig        `toml:"app"`
	Consensus  ConsensusConfig  `toml:"consensus"`
	Compliance ComplianceConfig `toml:"compliance"`
	Enclave    EnclaveConfig    `toml:"enclave"`
	Chain      ChainConfig      `toml:"chain"`
	Permission PermissionConfig `toml:"permission"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	AuditLogPath string `toml:"audit_log_path"`
}

// ConsensusConfig controls agent orchestration and conflict analysis.
type ConsensusConfig struct {
	Aggregation            string        `toml:"aggregation"` // majority_vote | top_confidence | weighted_average
	RoundTimeoutSeconds    int           `toml:"round_timeout_seconds"`
	DisagreementThreshold  float64       `toml:"disagreement_threshold"`
	ConfidenceThreshold    float64       `toml:"confidence_threshold"`
	OutlierThreshold       float64       `toml:"outlier_threshold"`
	BuildVersion           string        `toml:"build_version"` // integrity input for the frozen model CID
	ExpertiseScoreRequired float64       `toml:"expertise_score_required"`
	Agents                 []AgentConfig `toml:"agents"`
}

// AgentConfig declares one LLM-backed voting agent.
type AgentConfig struct {
	ID             string             `toml:"id"`
	Enabled        bool               `toml:"enabled"`
	Weight         float64            `toml:"weight"`
	Expertise      map[string]float64 `toml:"expertise"`
	BaseURL        string             `toml:"base_url"`
	APIKey         string             `toml:"api_key"`
	Model          string             `toml:"model"`
	SystemPrompt   string             `toml:"system_prompt"`
	TimeoutSeconds int                `toml:"timeout_seconds"`
}

type ComplianceConfig struct {
	MinConfidence     float64  `toml:"min_confidence"`
	ProhibitedPhrases []string `toml:"prohibited_phrases"`
}

// EnclaveConfig selects the attestation path. In production mode the process
// refuses to start without a reachable hardware quote endpoint.
type EnclaveConfig struct {
	Mode              string `toml:"mode"` // simulation | production
	TEESocket         string `toml:"tee_socket"`
	TEEAudience       string `toml:"tee_audience"`
	ChainID           int64  `toml:"chain_id"`
	VerifyingContract string `toml:"verifying_contract"`
}

type ChainConfig struct {
	RegistryAddress       string `toml:"registry_address"`
	RPCEndpoint           string `toml:"rpc_endpoint"`
	BreakerThreshold      int    `toml:"breaker_threshold"`
	BreakerTimeoutSeconds int    `toml:"breaker_timeout_seconds"`
}

type PermissionConfig struct {
	PoliciesPath         string `toml:"policies_path"`
	HistoryDBPath        string `toml:"history_db_path"`
	AuditDBPath          string `toml:"audit_db_path"`
	RetentionDays        int    `toml:"retention_days"`
	PruneIntervalMinutes int    `toml:"prune_interval_minutes"`
}

// IsProduction reports whether the enclave runs against real hardware.
func (e EnclaveConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(e.Mode), "production")
}

// keySet tracks field paths explicitly set in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
