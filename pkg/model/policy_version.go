package model

import "time"

// PolicyVersion represents a loaded review-policy version. Versions are
// deduplicated by SHA-256: reloading an unchanged file is a no-op.
type PolicyVersion struct {
	Version    int       `gorm:"column:version;primaryKey;autoIncrement" json:"version"`
	SHA256     string    `gorm:"column:sha256" json:"sha256"`
	SourcePath string    `gorm:"column:source_path" json:"source_path"`
	Raw        string    `gorm:"column:raw" json:"-"`
	LoadedAt   time.Time `gorm:"column:loaded_at;autoCreateTime" json:"loaded_at"`
	LoadedBy   string    `gorm:"column:loaded_by" json:"loaded_by"`
}

func (PolicyVersion) TableName() string {
	return "policy_versions"
}
