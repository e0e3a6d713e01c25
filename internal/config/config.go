package config

import (
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenHost string `envconfig:"LISTEN_HOST" default:"0.0.0.0"`
	ListenPort int    `envconfig:"LISTEN_PORT" default:"2222"`
	DataPath   string `envconfig:"DATA_PATH" default:"data"`
	LogPath    string `envconfig:"LOG_PATH" default:"data/webssh2.log"`

	// SSH backend defaults
	SSHPort              int    `envconfig:"SSH_PORT" default:"22"`
	SSHTerm              string `envconfig:"SSH_TERM" default:"xterm-256color"`
	SSHConnectTimeout    string `envconfig:"SSH_CONNECT_TIMEOUT" default:"10s"`
	SSHKeepaliveInterval string `envconfig:"SSH_KEEPALIVE_INTERVAL" default:"30s"`

	// Event bus
	BusMaxQueueSize    int    `envconfig:"BUS_MAX_QUEUE_SIZE" default:"100"`
	BusMaxRetries      int    `envconfig:"BUS_MAX_RETRIES" default:"3"`
	BusDedupWindow     string `envconfig:"BUS_DEDUP_WINDOW" default:"1s"`
	BusRateLimitWindow string `envconfig:"BUS_RATE_LIMIT_WINDOW" default:"1s"`
	BusRateLimitMax    int    `envconfig:"BUS_RATE_LIMIT_MAX" default:"200"`

	// Connection housekeeping
	IdleTimeout string `envconfig:"IDLE_TIMEOUT" default:"30m"`

	// Admin API
	AdminUser         string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" default:""`
	APITokenTTL       string `envconfig:"API_TOKEN_TTL" default:"12h"`

	// Audit retention
	AuditRetentionDays int `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`

	// System monitor
	MonitorInterval string `envconfig:"MONITOR_INTERVAL" default:"30s"`

	// Target presets and host allowlist. ALLOWED_HOSTS patterns are exact
	// names or *.suffix wildcards; empty means any host.
	TargetsPath  string   `envconfig:"TARGETS_PATH" default:""`
	AllowedHosts []string `envconfig:"ALLOWED_HOSTS" default:""`

	// Local shell backend (demo mode, no remote host required)
	LocalShellEnabled bool   `envconfig:"LOCAL_SHELL_ENABLED" default:"false"`
	LocalShell        string `envconfig:"LOCAL_SHELL" default:"/bin/bash"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("WEBSSH2", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// Duration parses a duration-valued setting, returning fallback when the
// value is empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("WARNING: invalid duration %q, using %s", raw, fallback)
		return fallback
	}
	return d
}

// HostAllowed reports whether host matches the configured allowlist. An
// empty allowlist permits any host.
func HostAllowed(host string) bool {
	patterns := Cfg.AllowedHosts
	if len(patterns) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, p := range patterns {
		if hostMatches(strings.ToLower(strings.TrimSpace(p)), host) {
			return true
		}
	}
	return false
}

func hostMatches(pattern, host string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return pattern == host
}
