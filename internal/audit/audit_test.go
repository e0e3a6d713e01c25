package audit

import (
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/billchurch/webssh2-sub007/internal/database"
	"github.com/billchurch/webssh2-sub007/internal/logging"
)

func setupAuditor(t *testing.T, retentionDays int) *Auditor {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&database.AuditLog{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return New(db, retentionDays)
}

func TestLogLiftsKnownContextIntoColumns(t *testing.T) {
	a := setupAuditor(t, 0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a.SetNowFunc(func() time.Time { return now })

	a.Log(logging.LevelInfo, logging.Entry{
		Event:   EventSessionStart,
		Message: "connected to example.com:22",
		Context: map[string]any{
			"session_id":    "s1",
			"connection_id": "c1",
			"host":          "example.com",
			"port":          22,
			"username":      "alice",
			"elapsed_ms":    int64(42),
		},
	})

	var rec database.AuditLog
	if err := a.db.First(&rec).Error; err != nil {
		t.Fatalf("load persisted entry: %v", err)
	}
	if rec.Event != EventSessionStart || rec.Level != "info" {
		t.Errorf("persisted event/level = %q/%q, want session_start/info", rec.Event, rec.Level)
	}
	if rec.SessionID != "s1" || rec.ConnectionID != "c1" || rec.Host != "example.com" || rec.Port != 22 || rec.Username != "alice" {
		t.Errorf("lifted columns = %+v, want s1/c1/example.com/22/alice", rec)
	}
	if !rec.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, now)
	}
	if !strings.Contains(rec.Context, "elapsed_ms") {
		t.Errorf("Context = %q, want leftover elapsed_ms", rec.Context)
	}
	if strings.Contains(rec.Context, "example.com") {
		t.Errorf("Context = %q, lifted host should not be duplicated", rec.Context)
	}
}

func TestLogWithoutContextLeavesContextEmpty(t *testing.T) {
	a := setupAuditor(t, 0)

	a.Log(logging.LevelWarn, logging.Entry{Event: EventAuthFailure, Message: "bad password"})

	var rec database.AuditLog
	if err := a.db.First(&rec).Error; err != nil {
		t.Fatalf("load persisted entry: %v", err)
	}
	if rec.Context != "" {
		t.Errorf("Context = %q, want empty", rec.Context)
	}
}

func TestLogSanitizesMessage(t *testing.T) {
	a := setupAuditor(t, 0)

	a.Log(logging.LevelError, logging.Entry{Event: EventError, Message: "line one\nline two"})

	var rec database.AuditLog
	if err := a.db.First(&rec).Error; err != nil {
		t.Fatalf("load persisted entry: %v", err)
	}
	if strings.Contains(rec.Message, "\n") {
		t.Errorf("Message = %q, want newlines stripped", rec.Message)
	}
}

func seedEntries(t *testing.T, a *Auditor) {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := []database.AuditLog{
		{Timestamp: base, Level: "info", Event: EventSessionStart, SessionID: "s1", Username: "alice", Host: "one.example.com"},
		{Timestamp: base.Add(time.Minute), Level: "error", Event: EventError, SessionID: "s1", Username: "alice", Host: "one.example.com"},
		{Timestamp: base.Add(2 * time.Minute), Level: "info", Event: EventSessionStart, SessionID: "s2", Username: "bob", Host: "two.example.com"},
		{Timestamp: base.Add(3 * time.Minute), Level: "info", Event: EventSessionEnd, SessionID: "s2", Username: "bob", Host: "two.example.com"},
	}
	for i := range rows {
		if err := a.db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed row %d: %v", i, err)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	a := setupAuditor(t, 0)
	seedEntries(t, a)

	res, err := a.Query(QueryOptions{SessionID: "s1"})
	if err != nil {
		t.Fatalf("query by session: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("session s1 total = %d, want 2", res.Total)
	}

	res, err = a.Query(QueryOptions{Event: EventSessionStart})
	if err != nil {
		t.Fatalf("query by event: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("session_start total = %d, want 2", res.Total)
	}

	res, err = a.Query(QueryOptions{Username: "bob", Level: "info"})
	if err != nil {
		t.Fatalf("query by username+level: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("bob info total = %d, want 2", res.Total)
	}

	res, err = a.Query(QueryOptions{Host: "one.example.com", Event: EventError})
	if err != nil {
		t.Fatalf("query by host+event: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("host one error total = %d, want 1", res.Total)
	}
}

func TestQueryTimeWindow(t *testing.T) {
	a := setupAuditor(t, 0)
	seedEntries(t, a)

	since := time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)
	until := time.Date(2025, 6, 1, 12, 2, 0, 0, time.UTC)
	res, err := a.Query(QueryOptions{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("query window: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("window total = %d, want 2", res.Total)
	}
}

func TestQueryOrdersNewestFirstWithPagination(t *testing.T) {
	a := setupAuditor(t, 0)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		row := database.AuditLog{Timestamp: base.Add(time.Duration(i) * time.Minute), Level: "info", Event: EventSessionStart}
		if err := a.db.Create(&row).Error; err != nil {
			t.Fatalf("seed row %d: %v", i, err)
		}
	}

	res, err := a.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Total != 60 {
		t.Errorf("Total = %d, want 60", res.Total)
	}
	if res.Limit != 50 || len(res.Entries) != 50 {
		t.Errorf("default page = %d entries (limit %d), want 50", len(res.Entries), res.Limit)
	}
	if !res.Entries[0].Timestamp.After(res.Entries[1].Timestamp) {
		t.Error("entries not ordered newest first")
	}

	page2, err := a.Query(QueryOptions{Offset: 50})
	if err != nil {
		t.Fatalf("query page 2: %v", err)
	}
	if len(page2.Entries) != 10 {
		t.Errorf("page 2 = %d entries, want 10", len(page2.Entries))
	}
}

func TestPurgeOlderThan(t *testing.T) {
	a := setupAuditor(t, 30)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a.SetNowFunc(func() time.Time { return now })

	old := database.AuditLog{Timestamp: now.AddDate(0, 0, -100), Level: "info", Event: EventSessionEnd}
	recent := database.AuditLog{Timestamp: now.AddDate(0, 0, -10), Level: "info", Event: EventSessionEnd}
	for _, row := range []*database.AuditLog{&old, &recent} {
		if err := a.db.Create(row).Error; err != nil {
			t.Fatalf("seed row: %v", err)
		}
	}

	deleted, err := a.PurgeOlderThan(0)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Errorf("purged %d rows, want 1", deleted)
	}

	var count int64
	a.db.Model(&database.AuditLog{}).Count(&count)
	if count != 1 {
		t.Errorf("remaining rows = %d, want 1", count)
	}
}

func TestRetentionDaysDefault(t *testing.T) {
	if got := setupAuditor(t, 0).RetentionDays(); got != DefaultRetentionDays {
		t.Errorf("RetentionDays() = %d, want %d", got, DefaultRetentionDays)
	}
	if got := setupAuditor(t, 7).RetentionDays(); got != 7 {
		t.Errorf("RetentionDays() = %d, want 7", got)
	}
}

func TestGlobalRegistry(t *testing.T) {
	ResetGlobalForTest()
	t.Cleanup(ResetGlobalForTest)

	if Get() != nil {
		t.Fatal("Get() non-nil before InitGlobal")
	}
	if _, ok := Sink().(logging.StdLogger); !ok {
		t.Error("Sink() before init should fall back to StdLogger")
	}

	a := setupAuditor(t, 0)
	SetGlobalForTest(a)
	if Get() != a {
		t.Error("Get() did not return the registered auditor")
	}
	if Sink() != logging.Logger(a) {
		t.Error("Sink() did not return the registered auditor")
	}
}

func TestHelpersAreNilSafe(t *testing.T) {
	ResetGlobalForTest()
	t.Cleanup(ResetGlobalForTest)

	LogAuthSuccess("alice", "10.0.0.1")
	LogAuthFailure("alice", "10.0.0.1", "bad password")
	LogRateLimited("s1", "10.0.0.1", "resize flood")
}

func TestHelpersRecordThroughGlobal(t *testing.T) {
	a := setupAuditor(t, 0)
	SetGlobalForTest(a)
	t.Cleanup(ResetGlobalForTest)

	LogAuthFailure("mallory", "203.0.113.9", "bad password")

	res, err := a.Query(QueryOptions{Event: EventAuthFailure, Username: "mallory"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("auth_failure total = %d, want 1", res.Total)
	}
	if !strings.Contains(res.Entries[0].Context, "client_ip") {
		t.Errorf("Context = %q, want client_ip recorded", res.Entries[0].Context)
	}
}
