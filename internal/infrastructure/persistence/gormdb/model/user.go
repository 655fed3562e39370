package model

import "time"

type User struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Username       string    `gorm:"column:username;type:varchar(255);not null;uniqueIndex"`
	Email          string    `gorm:"column:email;type:varchar(255);not null;uniqueIndex"`
	Admin          bool      `gorm:"column:admin;not null;default:false"`
	Staged         bool      `gorm:"column:staged;not null;default:false"`
	GitHubID       *int64    `gorm:"column:github_id;index"`
	GitHubUsername *string   `gorm:"column:github_username;type:varchar(255);index"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (User) TableName() string {
	return "users"
}
