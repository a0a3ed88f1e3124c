package model

import "time"

// Operator is an API principal allowed to drive the pipeline. The API key
// itself is never stored; only its bcrypt digest is.
type Operator struct {
	Login        string     `gorm:"column:login;primaryKey" json:"login"`
	APIKeyDigest string     `gorm:"column:api_key_digest" json:"-"`
	Role         string     `gorm:"column:role" json:"role"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
}

func (Operator) TableName() string {
	return "operators"
}
