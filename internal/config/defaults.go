package config

import "strings"

const (
	defaultAppEnv              = "dev"
	defaultAppLogLevel         = "info"
	defaultAppHTTPAddr         = ":9984"
	defaultAppLogPath          = "/data/logs/notary.log"
	defaultAppAuditLogPath     = "/data/logs/notary-audit.log"
	defaultAggregation         = "majority_vote"
	defaultRoundTimeout        = 45
	defaultDisagreement        = 0.3
	defaultConfidenceThresh    = 0.8
	defaultOutlierThresh       = 2.0
	defaultExpertiseRequired   = 0.7
	defaultMinConfidence       = 0.70
	defaultEnclaveMode         = "simulation"
	defaultTEESocket           = "/var/run/tee/attest.sock"
	defaultTEEAudience         = "notary-decision"
	defaultChainID             = 14 // Flare mainnet
	defaultBreakerThreshold    = 3
	defaultBreakerTimeout      = 30
	defaultPoliciesPath        = "configs/policies.yaml"
	defaultHistoryDBPath       = "/data/db/tx_history.db"
	defaultAuditDBPath         = "/data/db/secure_operations.db"
	defaultRetentionDays       = 30
	defaultPruneIntervalMinute = 60
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Consensus.applyDefaults(keys)
	c.Compliance.applyDefaults(keys)
	c.Enclave.applyDefaults(keys)
	c.Chain.applyDefaults(keys)
	c.Permission.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.audit_log_path", &a.AuditLogPath, defaultAppAuditLogPath),
	)
}

func (c *ConsensusConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("consensus.aggregation", &c.Aggregation, defaultAggregation),
		fieldDefault{
			key:   "consensus.round_timeout_seconds",
			need:  func() bool { return c.RoundTimeoutSeconds <= 0 },
			apply: func() { c.RoundTimeoutSeconds = defaultRoundTimeout },
		},
		fieldDefault{
			key:   "consensus.disagreement_threshold",
			need:  func() bool { return c.DisagreementThreshold <= 0 },
			apply: func() { c.DisagreementThreshold = defaultDisagreement },
		},
		fieldDefault{
			key:   "consensus.confidence_threshold",
			need:  func() bool { return c.ConfidenceThreshold <= 0 },
			apply: func() { c.ConfidenceThreshold = defaultConfidenceThresh },
		},
		fieldDefault{
			key:   "consensus.outlier_threshold",
			need:  func() bool { return c.OutlierThreshold <= 0 },
			apply: func() { c.OutlierThreshold = defaultOutlierThresh },
		},
		fieldDefault{
			key:   "consensus.expertise_score_required",
			need:  func() bool { return c.ExpertiseScoreRequired <= 0 },
			apply: func() { c.ExpertiseScoreRequired = defaultExpertiseRequired },
		},
	)
}

func (c *ComplianceConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "compliance.min_confidence",
			need:  func() bool { return c.MinConfidence <= 0 },
			apply: func() { c.MinConfidence = defaultMinConfidence },
		},
		fieldDefault{
			key:   "compliance.prohibited_phrases",
			need:  func() bool { return len(c.ProhibitedPhrases) == 0 },
			apply: func() { c.ProhibitedPhrases = []string{"all-in", "all in", "100%"} },
		},
	)
}

func (e *EnclaveConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("enclave.mode", &e.Mode, defaultEnclaveMode),
		stringFieldDefault("enclave.tee_socket", &e.TEESocket, defaultTEESocket),
		stringFieldDefault("enclave.tee_audience", &e.TEEAudience, defaultTEEAudience),
		fieldDefault{
			key:   "enclave.chain_id",
			need:  func() bool { return e.ChainID <= 0 },
			apply: func() { e.ChainID = defaultChainID },
		},
	)
}

func (c *ChainConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "chain.breaker_threshold",
			need:  func() bool { return c.BreakerThreshold <= 0 },
			apply: func() { c.BreakerThreshold = defaultBreakerThreshold },
		},
		fieldDefault{
			key:   "chain.breaker_timeout_seconds",
			need:  func() bool { return c.BreakerTimeoutSeconds <= 0 },
			apply: func() { c.BreakerTimeoutSeconds = defaultBreakerTimeout },
		},
	)
}

func (p *PermissionConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("permission.policies_path", &p.PoliciesPath, defaultPoliciesPath),
		stringFieldDefault("permission.history_db_path", &p.HistoryDBPath, defaultHistoryDBPath),
		stringFieldDefault("permission.audit_db_path", &p.AuditDBPath, defaultAuditDBPath),
		fieldDefault{
			key:   "permission.retention_days",
			need:  func() bool { return p.RetentionDays <= 0 },
			apply: func() { p.RetentionDays = defaultRetentionDays },
		},
		fieldDefault{
			key:   "permission.prune_interval_minutes",
			need:  func() bool { return p.PruneIntervalMinutes <= 0 },
			apply: func() { p.PruneIntervalMinutes = defaultPruneIntervalMinute },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
