package database

import "time"

// AuditLog is one persisted session-log entry. Context holds the
// JSON-encoded remainder of the structured entry after the indexed columns
// are lifted out.
type AuditLog struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp    time.Time `gorm:"index;not null" json:"timestamp"`
	Level        string    `gorm:"not null;default:info" json:"level"`
	Event        string    `gorm:"index;not null" json:"event"`
	SessionID    string    `gorm:"index" json:"session_id"`
	ConnectionID string    `json:"connection_id"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	Username     string    `json:"username"`
	Message      string    `json:"message"`
	Context      string    `gorm:"type:text" json:"context,omitempty"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Target is a saved backend preset reachable through /ws/target/{name}.
// Password is Fernet-encrypted at rest.
type Target struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null;size:64" json:"name"`
	Host      string    `gorm:"not null" json:"host"`
	Port      int       `gorm:"not null;default:22" json:"port"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
