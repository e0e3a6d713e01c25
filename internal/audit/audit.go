// Package audit persists structured session-log entries to the database and
// answers filtered queries over them. The Auditor satisfies logging.Logger,
// so it plugs straight into connection lifecycle wiring as the log sink.
package audit

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/billchurch/webssh2-sub007/internal/database"
	"github.com/billchurch/webssh2-sub007/internal/logging"
)

// Event names recorded by the gateway.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventError        = "error"
	EventAuthSuccess  = "auth_success"
	EventAuthFailure  = "auth_failure"
	EventRateLimited  = "rate_limited"
)

// DefaultRetentionDays is the default number of days to keep audit logs.
const DefaultRetentionDays = 90

// Auditor records and queries audit logs. It writes records to the database
// and also emits log lines for observability.
type Auditor struct {
	mu            sync.RWMutex
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time // injectable clock for testing
}

// New creates an Auditor writing to the given database. If retentionDays is
// 0 or negative, DefaultRetentionDays is used.
func New(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Log persists one structured entry. Well-known context keys become indexed
// columns; whatever remains is stored as JSON. Persistence failures are
// logged and swallowed so an unhealthy database never breaks a session.
func (a *Auditor) Log(level logging.Level, e logging.Entry) {
	rec := database.AuditLog{
		Timestamp: a.nowFn(),
		Level:     string(level),
		Event:     e.Event,
		Message:   logging.Sanitize(e.Message),
	}

	rest := make(map[string]any, len(e.Context))
	for k, v := range e.Context {
		switch k {
		case "session_id":
			rec.SessionID = stringFrom(v)
		case "connection_id":
			rec.ConnectionID = stringFrom(v)
		case "host":
			rec.Host = stringFrom(v)
		case "port":
			rec.Port = intFrom(v)
		case "username":
			rec.Username = stringFrom(v)
		default:
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		if data, err := json.Marshal(rest); err == nil {
			rec.Context = string(data)
		}
	}

	if err := a.db.Create(&rec).Error; err != nil {
		log.Printf("[audit] failed to write audit log: %v", err)
	}

	log.Printf("[audit] %s level=%s session=%s msg=%q", e.Event, level, rec.SessionID, rec.Message)
}

// QueryOptions specifies filters for retrieving audit logs.
type QueryOptions struct {
	SessionID string
	Event     string
	Username  string
	Host      string
	Level     string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// QueryResult contains audit log entries and pagination metadata.
type QueryResult struct {
	Entries []database.AuditLog `json:"entries"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Query retrieves audit log entries matching the given options, newest
// first.
func (a *Auditor) Query(opts QueryOptions) (*QueryResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tx := a.db.Model(&database.AuditLog{})

	if opts.SessionID != "" {
		tx = tx.Where("session_id = ?", opts.SessionID)
	}
	if opts.Event != "" {
		tx = tx.Where("event = ?", opts.Event)
	}
	if opts.Username != "" {
		tx = tx.Where("username = ?", opts.Username)
	}
	if opts.Host != "" {
		tx = tx.Where("host = ?", opts.Host)
	}
	if opts.Level != "" {
		tx = tx.Where("level = ?", opts.Level)
	}
	if opts.Since != nil {
		tx = tx.Where("timestamp >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("timestamp <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	var entries []database.AuditLog
	if err := tx.Order("timestamp DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return &QueryResult{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

// PurgeOlderThan removes audit log entries older than the given number of
// days, falling back to the configured retention period when days <= 0.
// Returns the number of records deleted.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	cutoff := a.nowFn().AddDate(0, 0, -days)
	result := a.db.Where("timestamp < ?", cutoff).Delete(&database.AuditLog{})
	if result.Error != nil {
		log.Printf("[audit] purge failed: %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[audit] purged %d audit log entries older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int {
	return a.retentionDays
}

// SetNowFunc sets the clock function used for testing.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.nowFn = fn
}

func stringFrom(v any) string {
	s, _ := v.(string)
	return s
}

func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
