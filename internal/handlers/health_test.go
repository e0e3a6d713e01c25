package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/billchurch/webssh2-sub007/internal/database"
)

func getHealth(t *testing.T) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthCheck(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp
}

func TestHealthCheckNoDatabase(t *testing.T) {
	prev := database.DB
	database.DB = nil
	defer func() { database.DB = prev }()

	resp := getHealth(t)
	if resp["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", resp["status"])
	}
	if resp["database"] != "disconnected" {
		t.Errorf("database = %v, want disconnected", resp["database"])
	}
}

func TestHealthCheckHealthy(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	resp := getHealth(t)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if resp["database"] != "connected" {
		t.Errorf("database = %v, want connected", resp["database"])
	}
}
