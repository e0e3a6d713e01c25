package crypto

import (
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/billchurch/webssh2-sub007/internal/database"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&database.Setting{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setupTestDB(t)

	token, err := Encrypt("hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if token == "hunter2" || token == "" {
		t.Fatalf("Encrypt returned %q, want an opaque token", token)
	}

	plain, err := Decrypt(token)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "hunter2" {
		t.Errorf("Decrypt = %q, want hunter2", plain)
	}
}

func TestFirstUseGeneratesAndPersistsKey(t *testing.T) {
	setupTestDB(t)

	if _, err := database.GetSetting(keySetting); err == nil {
		t.Fatal("key present before first use")
	}
	if _, err := Encrypt("x"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	keyStr, err := database.GetSetting(keySetting)
	if err != nil {
		t.Fatalf("key not persisted after first use: %v", err)
	}
	if keyStr == "" {
		t.Error("persisted key is empty")
	}
}

func TestKeyIsStableAcrossUses(t *testing.T) {
	setupTestDB(t)

	first, err := Encrypt("payload one")
	if err != nil {
		t.Fatalf("first encrypt: %v", err)
	}
	if _, err := Encrypt("payload two"); err != nil {
		t.Fatalf("second encrypt: %v", err)
	}

	plain, err := Decrypt(first)
	if err != nil {
		t.Fatalf("decrypt after later encrypt: %v", err)
	}
	if plain != "payload one" {
		t.Errorf("Decrypt = %q, want payload one", plain)
	}
}

func TestDecryptEmptyIsEmpty(t *testing.T) {
	setupTestDB(t)

	plain, err := Decrypt("")
	if err != nil {
		t.Fatalf("decrypt empty: %v", err)
	}
	if plain != "" {
		t.Errorf("Decrypt(\"\") = %q, want empty", plain)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	setupTestDB(t)

	if _, err := Decrypt("not-a-fernet-token"); err == nil {
		t.Error("Decrypt accepted garbage token")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ab", "****"},
		{"abcd", "****"},
		{"secret-password", "****word"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if strings.Contains(Mask("super-secret-value"), "super") {
		t.Error("Mask leaked the secret prefix")
	}
}
