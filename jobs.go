package main

import (
	"log"
	"time"

	"github.com/billchurch/webssh2-sub007/internal/audit"
	"github.com/billchurch/webssh2-sub007/internal/connpool"
	"github.com/billchurch/webssh2-sub007/internal/session"
)

// sweepIdleSessions terminates backend connections that have seen no browser
// input for longer than idleTimeout, then drops ended session records that
// have gone quiet for at least as long. Live sessions and sessions with
// connections still in the pool are left alone.
func sweepIdleSessions(pool *connpool.Pool, store *session.Store, idleTimeout time.Duration) {
	for _, c := range pool.Idle(idleTimeout) {
		log.Printf("Closing idle connection %s (session %s, last activity %s)",
			c.ID, c.SessionID, c.LastActivity.Format(time.RFC3339))
		if c.Client != nil {
			if err := c.Client.Terminate(); err != nil {
				log.Printf("Terminate idle connection %s: %v", c.ID, err)
			}
		}
		pool.Remove(c.ID)
	}

	cutoff := time.Now().Add(-idleTimeout)
	for _, st := range store.States() {
		if st.Connection.Status != session.ConnClosed {
			continue
		}
		if len(pool.BySession(st.ID)) > 0 {
			continue
		}
		if st.Metadata.UpdatedAt.After(cutoff) {
			continue
		}
		store.Delete(st.ID)
		log.Printf("Dropped ended session %s", st.ID)
	}
}

// purgeAuditLogs removes audit entries past the configured retention period.
func purgeAuditLogs() {
	a := audit.Get()
	if a == nil {
		return
	}
	if _, err := a.PurgeOlderThan(0); err != nil {
		log.Printf("Audit purge: %v", err)
	}
}
