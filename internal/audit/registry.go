package audit

import (
	"sync"

	"gorm.io/gorm"

	"github.com/billchurch/webssh2-sub007/internal/logging"
)

var (
	globalAuditor *Auditor
	registryMu    sync.RWMutex
)

// InitGlobal creates and stores the global Auditor instance.
// Call this once during application startup after the database is initialized.
func InitGlobal(db *gorm.DB, retentionDays int) {
	registryMu.Lock()
	defer registryMu.Unlock()
	globalAuditor = New(db, retentionDays)
}

// Get returns the global Auditor instance, nil before InitGlobal.
func Get() *Auditor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return globalAuditor
}

// Sink returns the global Auditor as a structured log sink, falling back to
// the process log when auditing is not initialized.
func Sink() logging.Logger {
	if a := Get(); a != nil {
		return a
	}
	return logging.StdLogger{}
}

// SetGlobalForTest sets the global Auditor for tests.
func SetGlobalForTest(a *Auditor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	globalAuditor = a
}

// ResetGlobalForTest clears the global Auditor.
func ResetGlobalForTest() {
	registryMu.Lock()
	defer registryMu.Unlock()
	globalAuditor = nil
}
