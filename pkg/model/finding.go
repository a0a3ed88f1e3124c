package model

import (
	"strings"
	"time"

	"github.com/aegisid/aegisid/pkg/identity"
)

// Reviewer names recorded on findings. Auto marks findings decided by band
// mapping alone, override findings forced by a policy override.
const (
	ReviewerAuto      = "auto"
	ReviewerSimulated = "simulated"
	ReviewerOverride  = "override"
)

// Finding is the scored, decided outcome for one identity within one run.
type Finding struct {
	ID         uint              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID      string            `gorm:"column:run_id" json:"run_id"`
	IdentityID string            `gorm:"column:identity_id" json:"identity_id"`
	RiskScore  int               `gorm:"column:risk_score" json:"risk_score"`
	Band       identity.Band     `gorm:"column:band" json:"band"`
	Decision   identity.Decision `gorm:"column:decision" json:"decision"`
	Reviewer   string            `gorm:"column:reviewer" json:"reviewer"`
	Reasons    string            `gorm:"column:reasons" json:"-"`
	ScoredBy   string            `gorm:"column:scored_by" json:"scored_by"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	// Joined from identities for dashboard and export reads.
	Identity *Identity `gorm:"foreignKey:IdentityID" json:"identity,omitempty"`
}

func (Finding) TableName() string {
	return "findings"
}

// ReasonList splits the stored reasons string into individual factors.
func (f *Finding) ReasonList() []string {
	if f.Reasons == "" {
		return nil
	}
	return strings.Split(f.Reasons, "\n")
}

// SetReasons stores a factor list as a newline-joined string.
func (f *Finding) SetReasons(reasons []string) {
	f.Reasons = strings.Join(reasons, "\n")
}
