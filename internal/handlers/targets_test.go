package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/billchurch/webssh2-sub007/internal/crypto"
	"github.com/billchurch/webssh2-sub007/internal/database"
	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB swaps in a fresh in-memory database for one test.
func setupTestDB(t *testing.T) func() {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&database.AuditLog{}, &database.Setting{}, &database.Target{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	prev := database.DB
	database.DB = db
	return func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		database.DB = prev
	}
}

func targetsRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/api/targets", ListTargets)
	r.Post("/api/targets", CreateTarget)
	r.Put("/api/targets/{name}", UpdateTarget)
	r.Delete("/api/targets/{name}", DeleteTarget)
	return r
}

func postTarget(t *testing.T, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/targets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	targetsRouter().ServeHTTP(rec, req)
	return rec
}

func TestCreateTargetStoresEncryptedPassword(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	rec := postTarget(t, targetRequest{Name: "dev", Host: "dev.example.com", Username: "deploy", Password: "s3cretpw"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := database.GetTargetByName("dev")
	if err != nil {
		t.Fatalf("fetch target: %v", err)
	}
	if stored.Port != 22 {
		t.Errorf("Port = %d, want default 22", stored.Port)
	}
	if stored.Password == "s3cretpw" {
		t.Fatal("password stored in plaintext, expected encrypted")
	}
	decrypted, err := crypto.Decrypt(stored.Password)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decrypted != "s3cretpw" {
		t.Fatalf("decrypted = %q, want s3cretpw", decrypted)
	}

	var resp targetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Password == "s3cretpw" {
		t.Fatal("response leaks the plaintext password")
	}
	if resp.Password != "****etpw" {
		t.Errorf("masked password = %q, want ****etpw", resp.Password)
	}
}

func TestCreateTargetDuplicateName(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	if rec := postTarget(t, targetRequest{Name: "dev", Host: "a.example.com"}); rec.Code != http.StatusCreated {
		t.Fatalf("first create failed: %d", rec.Code)
	}
	rec := postTarget(t, targetRequest{Name: "dev", Host: "b.example.com"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateTargetValidation(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	rec := postTarget(t, targetRequest{Name: "dev"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing host, got %d", rec.Code)
	}
}

func TestListTargetsMasksPasswords(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	postTarget(t, targetRequest{Name: "beta", Host: "beta.example.com", Password: "topsecret"})
	postTarget(t, targetRequest{Name: "alpha", Host: "alpha.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/api/targets", nil)
	rec := httptest.NewRecorder()
	targetsRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Targets []targetResponse `json:"targets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(resp.Targets))
	}
	if resp.Targets[0].Name != "alpha" {
		t.Errorf("targets not sorted by name, first = %q", resp.Targets[0].Name)
	}
	if resp.Targets[1].Password != "****cret" {
		t.Errorf("masked password = %q, want ****cret", resp.Targets[1].Password)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("topsecret")) {
		t.Fatal("list response leaks a plaintext password")
	}
}

func TestUpdateTargetKeepsPasswordWhenOmitted(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	postTarget(t, targetRequest{Name: "dev", Host: "old.example.com", Password: "original"})

	body, _ := json.Marshal(targetRequest{Host: "new.example.com"})
	req := httptest.NewRequest(http.MethodPut, "/api/targets/dev", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	targetsRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, err := database.GetTargetByName("dev")
	if err != nil {
		t.Fatalf("fetch target: %v", err)
	}
	if stored.Host != "new.example.com" {
		t.Errorf("Host = %q, want new.example.com", stored.Host)
	}
	decrypted, err := crypto.Decrypt(stored.Password)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decrypted != "original" {
		t.Fatalf("password changed on update, got %q", decrypted)
	}
}

func TestUpdateTargetNotFound(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	body, _ := json.Marshal(targetRequest{Host: "x.example.com"})
	req := httptest.NewRequest(http.MethodPut, "/api/targets/ghost", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	targetsRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteTarget(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()
	postTarget(t, targetRequest{Name: "dev", Host: "dev.example.com"})

	req := httptest.NewRequest(http.MethodDelete, "/api/targets/dev", nil)
	rec := httptest.NewRecorder()
	targetsRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, err := database.GetTargetByName("dev"); err == nil {
		t.Fatal("target still present after delete")
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/targets/dev", nil)
	rec = httptest.NewRecorder()
	targetsRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}
