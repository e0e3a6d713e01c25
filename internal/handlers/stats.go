package handlers

import (
	"net/http"
	"time"

	"github.com/billchurch/webssh2-sub007/internal/bus"
)

// BusMetrics is set from main.go during init when the metrics middleware is
// installed.
var BusMetrics *bus.Metrics

func GetStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}

	if Bus != nil {
		st := Bus.GetStats()
		resp["bus"] = map[string]interface{}{
			"published":  st.Published,
			"processed":  st.Processed,
			"failed":     st.Failed,
			"dropped":    st.Dropped,
			"queue_size": Bus.GetQueueSize(),
			"handlers":   st.Handlers,
		}
	}

	if BusMetrics != nil {
		perType := map[string]interface{}{}
		for t, m := range BusMetrics.Snapshot() {
			avgMs := 0.0
			if m.Count > 0 {
				avgMs = float64(m.Total) / float64(m.Count) / float64(time.Millisecond)
			}
			perType[string(t)] = map[string]interface{}{
				"count":   m.Count,
				"dropped": m.Dropped,
				"avg_ms":  avgMs,
				"max_ms":  float64(m.Max) / float64(time.Millisecond),
			}
		}
		resp["events"] = perType
	}

	if Store != nil {
		resp["sessions"] = Store.Count()
	}
	if Pool != nil {
		resp["connections"] = Pool.Count()
		resp["connected_sessions"] = Pool.SessionCount()
	}
	if TokenStore != nil {
		resp["tokens"] = TokenStore.Count()
	}

	if Mon != nil {
		s := Mon.Snapshot()
		if !s.Timestamp.IsZero() {
			resp["system"] = map[string]interface{}{
				"sampled_at":       s.Timestamp.UTC().Format(time.RFC3339),
				"cpu_percent":      s.CPUPercent,
				"mem_used_percent": s.MemUsedPercent,
				"load1":            s.Load1,
				"goroutines":       s.Goroutines,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
