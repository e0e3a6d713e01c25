package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/billchurch/webssh2-sub007/internal/config"
)

const dbFileName = "webssh2.db"

var DB *gorm.DB

func Init() error {
	dbPath := filepath.Join(config.Cfg.DataPath, dbFileName)
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&AuditLog{}, &Setting{}, &Target{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

func DeleteSetting(key string) error {
	return DB.Where("key = ?", key).Delete(&Setting{}).Error
}

// Target helpers

func GetTargetByName(name string) (*Target, error) {
	var t Target
	if err := DB.Where("name = ?", name).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func ListTargets() ([]Target, error) {
	var targets []Target
	if err := DB.Order("name").Find(&targets).Error; err != nil {
		return nil, err
	}
	return targets, nil
}

func CreateTarget(t *Target) error {
	return DB.Create(t).Error
}

func UpdateTarget(t *Target) error {
	return DB.Save(t).Error
}

func DeleteTarget(name string) error {
	return DB.Where("name = ?", name).Delete(&Target{}).Error
}
