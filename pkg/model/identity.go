package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aegisid/aegisid/pkg/identity"
)

// Identity is a machine identity registered for review.
type Identity struct {
	ID            string        `gorm:"column:id;primaryKey" json:"id"`
	ExternalID    string        `gorm:"column:external_id" json:"external_id"`
	Name          string        `gorm:"column:name" json:"name"`
	Kind          identity.Kind `gorm:"column:kind" json:"kind"`
	Owner         string        `gorm:"column:owner" json:"owner,omitempty"`
	Source        string        `gorm:"column:source" json:"source"`
	UsageCount    int64         `gorm:"column:usage_count" json:"usage_count"`
	IPRestriction *string       `gorm:"column:ip_restriction" json:"ip_restriction"`
	Scopes        string        `gorm:"column:scopes" json:"-"`
	LastUsedAt    *time.Time    `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
	RotatedAt     *time.Time    `gorm:"column:rotated_at" json:"rotated_at,omitempty"`
	Metadata      string        `gorm:"column:metadata" json:"-"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Identity) TableName() string {
	return "identities"
}

func (i *Identity) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// ScopeList splits the stored scope string into individual scopes.
func (i *Identity) ScopeList() []string {
	if i.Scopes == "" {
		return nil
	}
	parts := strings.Split(i.Scopes, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// SetScopes stores a scope list as a comma-joined string.
func (i *Identity) SetScopes(scopes []string) {
	i.Scopes = strings.Join(scopes, ",")
}

// Restricted reports whether the identity carries any IP restriction.
func (i *Identity) Restricted() bool {
	return i.IPRestriction != nil && strings.TrimSpace(*i.IPRestriction) != ""
}
