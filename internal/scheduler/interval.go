package scheduler

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// ParseWindowDuration parses "30s", "15m", "1h", "1d", "1w" into time.Duration.
// Returns (0, false) on invalid input.
func ParseWindowDuration(window string) (time.Duration, bool) {
	window = strings.ToLower(strings.TrimSpace(window))
	if window == "" {
		return 0, false
	}
	unit := window[len(window)-1]
	numStr := strings.TrimSpace(window[:len(window)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// RunEvery invokes fn at the given interval until ctx is cancelled.
// Used for ledger retention pruning.
func RunEvery(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 || fn == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
