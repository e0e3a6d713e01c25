package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/billchurch/webssh2-sub007/internal/crypto"
	"github.com/billchurch/webssh2-sub007/internal/database"
	"github.com/billchurch/webssh2-sub007/internal/middleware"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type targetRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type targetResponse struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// maskedPassword renders a stored password for display without revealing
// it. Values that fail to decrypt still show as masked.
func maskedPassword(encrypted string) string {
	if encrypted == "" {
		return ""
	}
	pw, err := crypto.Decrypt(encrypted)
	if err != nil {
		return "****"
	}
	return crypto.Mask(pw)
}

func buildTargetResponse(t database.Target) targetResponse {
	return targetResponse{
		Name:      t.Name,
		Host:      t.Host,
		Port:      t.Port,
		Username:  t.Username,
		Password:  maskedPassword(t.Password),
		CreatedAt: t.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt: t.UpdatedAt.UTC().Format(timeLayout),
	}
}

func ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := database.ListTargets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list targets")
		return
	}
	resp := make([]targetResponse, 0, len(targets))
	for _, t := range targets {
		resp = append(resp, buildTargetResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"targets": resp})
}

func CreateTarget(w http.ResponseWriter, r *http.Request) {
	var body targetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Name == "" || body.Host == "" {
		writeError(w, http.StatusBadRequest, "Name and host are required")
		return
	}
	if body.Port == 0 {
		body.Port = 22
	}

	encrypted := ""
	if body.Password != "" {
		var err error
		encrypted, err = crypto.Encrypt(body.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encrypt password")
			return
		}
	}

	t := database.Target{
		Name:     body.Name,
		Host:     body.Host,
		Port:     body.Port,
		Username: body.Username,
		Password: encrypted,
	}
	if err := database.CreateTarget(&t); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			writeError(w, http.StatusConflict, "Target name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create target")
		return
	}

	log.Printf("[handlers] target %s created by %s", t.Name, middleware.Username(r))
	writeJSON(w, http.StatusCreated, buildTargetResponse(t))
}

func UpdateTarget(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, err := database.GetTargetByName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Target not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load target")
		return
	}

	var body targetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.Host != "" {
		t.Host = body.Host
	}
	if body.Port != 0 {
		t.Port = body.Port
	}
	if body.Username != "" {
		t.Username = body.Username
	}
	if body.Password != "" {
		encrypted, err := crypto.Encrypt(body.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encrypt password")
			return
		}
		t.Password = encrypted
	}

	if err := database.UpdateTarget(t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update target")
		return
	}
	writeJSON(w, http.StatusOK, buildTargetResponse(*t))
}

func DeleteTarget(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := database.GetTargetByName(name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Target not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load target")
		return
	}

	if err := database.DeleteTarget(name); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete target")
		return
	}
	log.Printf("[handlers] target %s deleted by %s", name, middleware.Username(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
