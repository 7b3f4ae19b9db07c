package logger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Audit entries record secure operations (signing, attestation, permission
// verdicts) on a dedicated append-only stream, separate from operational logs.
// Appends are serialized so causally related entries keep their order.

var (
	auditMu     sync.Mutex
	auditWriter io.Writer
)

func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	auditWriter = w
	auditMu.Unlock()
}

// Auditf appends one line to the audit stream and mirrors it at info level.
func Auditf(operation, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	Infof("audit op=%s %s", operation, msg)
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditWriter == nil {
		return
	}
	line := fmt.Sprintf("%s op=%s %s\n", time.Now().UTC().Format(time.RFC3339Nano), operation, msg)
	if _, err := io.WriteString(auditWriter, line); err != nil {
		Warnf("audit write failed: %v", err)
	}
}
