package handlers

import (
	"net/http"

	"github.com/billchurch/webssh2-sub007/internal/database"
	"github.com/billchurch/webssh2-sub007/internal/events"
	"github.com/billchurch/webssh2-sub007/internal/monitor"
)

// Mon is set from main.go during init.
var Mon *monitor.Monitor

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	resp := map[string]interface{}{
		"status":   status,
		"database": dbStatus,
	}

	if Mon != nil {
		sysStatus, reasons := Mon.Status()
		if sysStatus != "" {
			resp["system"] = sysStatus
			if sysStatus == events.HealthDegraded {
				if status == "healthy" {
					resp["status"] = "degraded"
				}
				resp["reasons"] = reasons
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
