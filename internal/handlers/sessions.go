package handlers

import (
	"log"
	"net/http"

	"github.com/billchurch/webssh2-sub007/internal/connpool"
	"github.com/billchurch/webssh2-sub007/internal/session"
	"github.com/go-chi/chi/v5"
)

const timeLayout = "2006-01-02T15:04:05Z"

type connectionSummary struct {
	ID           string `json:"id"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity,omitempty"`
}

type sessionResponse struct {
	ID               string              `json:"id"`
	AuthStatus       string              `json:"auth_status"`
	Username         string              `json:"username,omitempty"`
	ConnectionStatus string              `json:"connection_status"`
	ConnectionID     string              `json:"connection_id,omitempty"`
	LastError        string              `json:"last_error,omitempty"`
	Term             string              `json:"term,omitempty"`
	Rows             int                 `json:"rows,omitempty"`
	Cols             int                 `json:"cols,omitempty"`
	ClientIP         string              `json:"client_ip,omitempty"`
	UserAgent        string              `json:"user_agent,omitempty"`
	UpdatedAt        string              `json:"updated_at"`
	Connections      []connectionSummary `json:"connections"`
}

func summarizeConn(c connpool.Conn) connectionSummary {
	s := connectionSummary{
		ID:        c.ID,
		Host:      c.Host,
		Port:      c.Port,
		Username:  c.Username,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.UTC().Format(timeLayout),
	}
	if !c.LastActivity.IsZero() {
		s.LastActivity = c.LastActivity.UTC().Format(timeLayout)
	}
	return s
}

func buildSessionResponse(st *session.State) sessionResponse {
	resp := sessionResponse{
		ID:               st.ID,
		AuthStatus:       string(st.Auth.Status),
		Username:         st.Auth.Username,
		ConnectionStatus: string(st.Connection.Status),
		ConnectionID:     st.Connection.ConnectionID,
		LastError:        st.Connection.ErrorMessage,
		Term:             st.Terminal.Term,
		Rows:             st.Terminal.Rows,
		Cols:             st.Terminal.Cols,
		ClientIP:         st.Metadata.ClientIP,
		UserAgent:        st.Metadata.UserAgent,
		UpdatedAt:        st.Metadata.UpdatedAt.UTC().Format(timeLayout),
		Connections:      []connectionSummary{},
	}
	for _, c := range Pool.BySession(st.ID) {
		resp.Connections = append(resp.Connections, summarizeConn(c))
	}
	return resp
}

func ListSessions(w http.ResponseWriter, r *http.Request) {
	states := Store.States()
	resp := make([]sessionResponse, 0, len(states))
	for _, st := range states {
		resp = append(resp, buildSessionResponse(st))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": resp})
}

func GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st := Store.GetState(id)
	if st == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, buildSessionResponse(st))
}

// DeleteSession terminates every backend connection the session owns, marks
// the session ended, and removes its record.
func DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st := Store.GetState(id)
	conns := Pool.BySession(id)
	if st == nil && len(conns) == 0 {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	for _, c := range conns {
		if c.Client != nil {
			if err := c.Client.Terminate(); err != nil {
				log.Printf("[handlers] terminate connection %s: %v", c.ID, err)
			}
		}
		Pool.Remove(c.ID)
	}

	Store.Dispatch(id, session.SessionEnd())
	Store.Delete(id)
	log.Printf("[handlers] session %s deleted by %s", id, clientIP(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
