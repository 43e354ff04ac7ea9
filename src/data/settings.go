package data

import (
	"sync"

	"gorm.io/gorm"
)

// Setting is a name/value row merged over env configuration at startup.
type Setting struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string `gorm:"size:64;uniqueIndex;not null"`
	Value string `gorm:"size:1024"`
}

func (Setting) TableName() string { return "agora_settings" }

var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings loads all settings from the database into cache.
func LoadSettings(db *gorm.DB) error {
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return err
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()

	settingsCache = make(map[string]string)
	for _, s := range settings {
		settingsCache[s.Name] = s.Value
	}

	return nil
}

// GetSetting retrieves a setting value from cache (call LoadSettings first).
func GetSetting(name string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsCache[name]
}
