package audit

import "github.com/billchurch/webssh2-sub007/internal/logging"

// LogAuthSuccess records a successful login. Safe to call before InitGlobal.
func LogAuthSuccess(username, clientIP string) {
	if a := Get(); a != nil {
		a.Log(logging.LevelInfo, logging.Entry{
			Event:   EventAuthSuccess,
			Message: "login succeeded",
			Context: map[string]any{"username": username, "client_ip": clientIP},
		})
	}
}

// LogAuthFailure records a rejected login attempt.
func LogAuthFailure(username, clientIP, reason string) {
	if a := Get(); a != nil {
		a.Log(logging.LevelWarn, logging.Entry{
			Event:   EventAuthFailure,
			Message: reason,
			Context: map[string]any{"username": username, "client_ip": clientIP},
		})
	}
}

// LogRateLimited records a client being throttled.
func LogRateLimited(sessionID, clientIP, what string) {
	if a := Get(); a != nil {
		a.Log(logging.LevelWarn, logging.Entry{
			Event:   EventRateLimited,
			Message: what,
			Context: map[string]any{"session_id": sessionID, "client_ip": clientIP},
		})
	}
}
