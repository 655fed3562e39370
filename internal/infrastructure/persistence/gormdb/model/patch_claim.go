package model

import "time"

type PatchClaim struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	PatchID   uint64    `gorm:"column:patch_id;not null;uniqueIndex:idx_patch_claims_patch_user,priority:1"`
	UserID    uint64    `gorm:"column:user_id;not null;uniqueIndex:idx_patch_claims_patch_user,priority:2"`
	Notes     *string   `gorm:"column:notes;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (PatchClaim) TableName() string {
	return "patch_claims"
}

// PatchClaimLog rows are never updated.
type PatchClaimLog struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	PatchID   uint64    `gorm:"column:patch_id;not null;index:idx_patch_claim_logs_lookup,priority:1"`
	UserID    uint64    `gorm:"column:user_id;not null;index:idx_patch_claim_logs_lookup,priority:2"`
	Action    string    `gorm:"column:action;type:varchar(16);not null;index:idx_patch_claim_logs_lookup,priority:3"`
	Notes     *string   `gorm:"column:notes;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (PatchClaimLog) TableName() string {
	return "patch_claim_logs"
}
