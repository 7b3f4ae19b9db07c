package permission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notary/internal/logger"
	"notary/internal/pkg/convert"
	"notary/internal/scheduler"

	"github.com/shopspring/decimal"
)

const dailyWindow = 24 * time.Hour

// Engine evaluates transactions against every enabled policy conjunctively
// and returns the most restrictive outcome. Evaluation is read-only; the
// caller records executed transactions separately via RecordExecuted.
type Engine struct {
	registry  *Registry
	history   History
	retention time.Duration
	now       func() time.Time
}

func NewEngine(registry *Registry, history History, retentionDays int) *Engine {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Engine{
		registry:  registry,
		history:   history,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Evaluate returns the action for the transaction plus every violation any
// enabled policy produced. DENY dominates REQUIRE_APPROVAL dominates ALLOW.
func (e *Engine) Evaluate(ctx context.Context, tx Transaction, walletID string) (string, []Violation, error) {
	policies := e.registry.Snapshot().Enabled()
	if len(policies) == 0 {
		return ActionAllow, nil, nil
	}

	now := e.now().UTC()
	maxLookback := dailyWindow
	for _, p := range policies {
		for _, w := range p.TimeWindows {
			if d, ok := scheduler.ParseWindowDuration(w.Duration); ok && d > maxLookback {
				maxLookback = d
			}
		}
	}
	entries, err := e.history.Since(ctx, walletID, now.Add(-maxLookback))
	if err != nil {
		return "", nil, fmt.Errorf("permission: history read: %w", err)
	}

	var violations []Violation
	for _, p := range policies {
		violations = append(violations, e.evaluatePolicy(p, tx, entries, now)...)
	}
	action := mostRestrictive(violations)
	if action != ActionAllow {
		logger.Warnf("transaction %s for wallet %s: %s with %d violation(s)", tx.Hash, walletID, action, len(violations))
	}
	return action, violations, nil
}

// RecordExecuted appends a successfully executed transaction to the ledger
// and prunes entries beyond the retention horizon.
func (e *Engine) RecordExecuted(ctx context.Context, tx Transaction, walletID string) error {
	now := e.now().UTC()
	err := e.history.Record(ctx, HistoryEntry{
		TxHash:      tx.Hash,
		WalletID:    walletID,
		Destination: normalizeAddress(tx.To),
		Value:       tx.ValueETH(),
		Timestamp:   now,
	})
	if err != nil {
		return fmt.Errorf("permission: record history: %w", err)
	}
	if err := e.history.Prune(ctx, now.Add(-e.retention)); err != nil {
		logger.Warnf("history prune failed: %v", err)
	}
	return nil
}

func (e *Engine) evaluatePolicy(p Policy, tx Transaction, entries []HistoryEntry, now time.Time) []Violation {
	var out []Violation
	value := tx.ValueETH()

	if limit, ok := parseLimit(p.MaxTransactionValue); ok && value.GreaterThan(limit) {
		out = append(out, Violation{
			PolicyName:      p.Name,
			ViolationType:   ViolationMaxValue,
			Description:     fmt.Sprintf("value %s exceeds per-transaction limit %s", value, limit),
			SuggestedAction: ActionDeny,
		})
	}

	if limit, ok := parseLimit(p.DailySpendingLimit); ok {
		spent := sumSince(entries, now.Add(-dailyWindow))
		if spent.Add(value).GreaterThan(limit) {
			out = append(out, Violation{
				PolicyName:      p.Name,
				ViolationType:   ViolationDailyLimit,
				Description:     fmt.Sprintf("daily spend %s + %s exceeds limit %s", spent, value, limit),
				SuggestedAction: ActionDeny,
			})
		}
	}

	// Blocked list wins over the allow list.
	if containsAddress(p.BlockedDestinations, tx.To) {
		out = append(out, Violation{
			PolicyName:      p.Name,
			ViolationType:   ViolationBlockedDestination,
			Description:     fmt.Sprintf("destination %s is blocked", tx.To),
			SuggestedAction: ActionDeny,
		})
	} else if len(p.AllowedDestinations) > 0 && !containsAddress(p.AllowedDestinations, tx.To) {
		out = append(out, Violation{
			PolicyName:      p.Name,
			ViolationType:   ViolationDestinationNotAllow,
			Description:     fmt.Sprintf("destination %s is not on the allow list", tx.To),
			SuggestedAction: ActionDeny,
		})
	}

	if !p.AllowContractInteractions && hasCalldata(tx.Data) {
		out = append(out, Violation{
			PolicyName:      p.Name,
			ViolationType:   ViolationContractInteraction,
			Description:     "contract interactions are disabled for this policy",
			SuggestedAction: ActionDeny,
		})
	}

	if len(p.AllowedHoursUTC) > 0 && !hourAllowed(p.AllowedHoursUTC, now.Hour()) {
		out = append(out, Violation{
			PolicyName:      p.Name,
			ViolationType:   ViolationOutsideHours,
			Description:     fmt.Sprintf("hour %02d UTC is outside allowed hours", now.Hour()),
			SuggestedAction: ActionDeny,
		})
	}

	// Gas ceilings alone are not treated as malicious: they escalate to
	// approval instead of denying.
	if limit, ok := parseLimit(p.MaxGasPrice); ok {
		gasPrice := weiToETH(tx.GasPrice)
		if convert.DigitsToBig(tx.GasPrice).Sign() > 0 && gasPrice.GreaterThan(limit) {
			out = append(out, Violation{
				PolicyName:      p.Name,
				ViolationType:   ViolationMaxGasPrice,
				Description:     fmt.Sprintf("gas price %s exceeds ceiling %s", gasPrice, limit),
				SuggestedAction: ActionRequireApproval,
			})
		}
	}
	if p.MaxGasLimit > 0 && tx.GasLimit > p.MaxGasLimit {
		out = append(out, Violation{
			PolicyName:      p.Name,
			ViolationType:   ViolationMaxGasLimit,
			Description:     fmt.Sprintf("gas limit %d exceeds ceiling %d", tx.GasLimit, p.MaxGasLimit),
			SuggestedAction: ActionRequireApproval,
		})
	}

	for _, w := range p.TimeWindows {
		out = append(out, e.evaluateWindow(p.Name, w, value, entries, now)...)
	}
	return out
}

func (e *Engine) evaluateWindow(policyName string, w TimeWindow, value decimal.Decimal, entries []HistoryEntry, now time.Time) []Violation {
	d, ok := scheduler.ParseWindowDuration(w.Duration)
	if !ok {
		logger.Warnf("policy %s window duration %q invalid, window skipped", policyName, w.Duration)
		return nil
	}
	var out []Violation
	count := 0
	total := decimal.Zero
	cutoff := now.Add(-d)
	for _, entry := range entries {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		count++
		total = total.Add(entry.Value)
	}
	if w.MaxTransactions > 0 && count+1 > w.MaxTransactions {
		out = append(out, Violation{
			PolicyName:      policyName,
			ViolationType:   ViolationWindowCount,
			Description:     fmt.Sprintf("%d transactions in %s exceeds limit %d", count+1, w.Duration, w.MaxTransactions),
			SuggestedAction: ActionDeny,
		})
	}
	if limit, ok := parseLimit(w.MaxValue); ok && total.Add(value).GreaterThan(limit) {
		out = append(out, Violation{
			PolicyName:      policyName,
			ViolationType:   ViolationWindowValue,
			Description:     fmt.Sprintf("cumulative value %s in %s exceeds limit %s", total.Add(value), w.Duration, limit),
			SuggestedAction: ActionDeny,
		})
	}
	return out
}

func sumSince(entries []HistoryEntry, cutoff time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			total = total.Add(e.Value)
		}
	}
	return total
}

func hasCalldata(data string) bool {
	d := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(data), "0x"))
	return d != ""
}

func hourAllowed(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}

func mostRestrictive(violations []Violation) string {
	action := ActionAllow
	for _, v := range violations {
		switch v.SuggestedAction {
		case ActionDeny:
			return ActionDeny
		case ActionRequireApproval:
			action = ActionRequireApproval
		}
	}
	return action
}
