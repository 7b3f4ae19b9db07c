// Package permission evaluates outbound transactions against named policy
// sets before anything gets signed.
package permission

import (
	"fmt"
	"strings"

	"notary/internal/pkg/convert"

	"github.com/shopspring/decimal"
)

// Evaluation actions, ordered by restrictiveness.
const (
	ActionAllow           = "ALLOW"
	ActionDeny            = "DENY"
	ActionRequireApproval = "REQUIRE_APPROVAL"
)

// Violation types, stable identifiers used in audit records.
const (
	ViolationMaxValue            = "max_transaction_value"
	ViolationDailyLimit          = "daily_spending_limit"
	ViolationBlockedDestination  = "blocked_destination"
	ViolationDestinationNotAllow = "destination_not_allowed"
	ViolationContractInteraction = "contract_interaction"
	ViolationOutsideHours        = "outside_allowed_hours"
	ViolationMaxGasPrice         = "max_gas_price"
	ViolationMaxGasLimit         = "max_gas_limit"
	ViolationWindowCount         = "time_window_count"
	ViolationWindowValue         = "time_window_value"
)

// Transaction is the candidate being evaluated. Value and gas price are in
// wei; evaluation normalizes to a decimal native-token unit.
type Transaction struct {
	Hash     string `json:"hash"`
	To       string `json:"to"`
	ValueWei string `json:"value_wei"`
	Data     string `json:"data"`
	GasPrice string `json:"gas_price_wei"`
	GasLimit uint64 `json:"gas_limit"`
}

// ValueETH converts the wei amount to the decimal native unit. Non-numeric
// input evaluates as zero; unparseable transfer amounts are refused
// upstream of the engine.
func (t Transaction) ValueETH() decimal.Decimal {
	return weiToETH(t.ValueWei)
}

func weiToETH(wei string) decimal.Decimal {
	return decimal.NewFromBigInt(convert.DigitsToBig(wei), -18)
}

// TimeWindow is a rolling rate limit: at most MaxTransactions and/or
// MaxValue (native units) of cumulative spend within the trailing Duration.
type TimeWindow struct {
	Duration        string `yaml:"duration" json:"duration"`
	MaxTransactions int    `yaml:"max_transactions" json:"max_transactions"`
	MaxValue        string `yaml:"max_value" json:"max_value"`
}

// Policy is one named constraint set. All limits are optional; empty means
// unconstrained. Multiple enabled policies apply conjunctively and
// evaluation never mutates them.
type Policy struct {
	Name                      string       `yaml:"name" json:"name"`
	Enabled                   bool         `yaml:"enabled" json:"enabled"`
	MaxTransactionValue       string       `yaml:"max_transaction_value" json:"max_transaction_value"`
	DailySpendingLimit        string       `yaml:"daily_spending_limit" json:"daily_spending_limit"`
	TimeWindows               []TimeWindow `yaml:"time_windows" json:"time_windows"`
	AllowedDestinations       []string     `yaml:"allowed_destinations" json:"allowed_destinations"`
	BlockedDestinations       []string     `yaml:"blocked_destinations" json:"blocked_destinations"`
	AllowContractInteractions bool         `yaml:"allow_contract_interactions" json:"allow_contract_interactions"`
	AllowedHoursUTC           []int        `yaml:"allowed_hours_utc" json:"allowed_hours_utc"`
	MaxGasPrice               string       `yaml:"max_gas_price" json:"max_gas_price"`
	MaxGasLimit               uint64       `yaml:"max_gas_limit" json:"max_gas_limit"`
}

// Violation is produced per evaluation call and never persisted by the
// engine itself.
type Violation struct {
	PolicyName      string `json:"policy_name"`
	ViolationType   string `json:"violation_type"`
	Description     string `json:"description"`
	SuggestedAction string `json:"suggested_action"`
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s: %s", v.PolicyName, v.ViolationType, v.Description)
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func containsAddress(list []string, addr string) bool {
	addr = normalizeAddress(addr)
	for _, a := range list {
		if normalizeAddress(a) == addr {
			return true
		}
	}
	return false
}

// parseLimit reads a decimal native-unit limit; empty or invalid means no
// limit.
func parseLimit(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}
