package model

import "time"

type PatchRating struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	PatchID   uint64    `gorm:"column:patch_id;not null;uniqueIndex:idx_patch_ratings_patch_user,priority:1"`
	UserID    uint64    `gorm:"column:user_id;not null;uniqueIndex:idx_patch_ratings_patch_user,priority:2;index"`
	IsUseful  bool      `gorm:"column:is_useful;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (PatchRating) TableName() string {
	return "patch_ratings"
}
