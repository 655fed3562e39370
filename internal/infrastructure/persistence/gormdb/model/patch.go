package model

import "time"

type Patch struct {
	ID              uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	CommitHash      string     `gorm:"column:commit_hash;type:varchar(40);not null;uniqueIndex:idx_patches_commit_hash"`
	Title           string     `gorm:"column:title;type:text;not null"`
	Summary         *string    `gorm:"column:summary;type:text"`
	MarkdownContent *string    `gorm:"column:markdown_content;type:text"`
	DiffContent     *string    `gorm:"column:diff_content;type:text"`
	IssueType       *string    `gorm:"column:issue_type;type:varchar(32);index"`
	AuditDate       *time.Time `gorm:"column:audit_date"`
	Repository      *string    `gorm:"column:repository;type:text"`
	Active          bool       `gorm:"column:active;not null;index"`

	UsefulCount    int `gorm:"column:useful_count;not null;default:0"`
	NotUsefulCount int `gorm:"column:not_useful_count;not null;default:0"`

	ResolvedAt             *time.Time `gorm:"column:resolved_at;index"`
	ResolvedByID           *uint64    `gorm:"column:resolved_by_id"`
	ResolutionStatus       *string    `gorm:"column:resolution_status;type:varchar(16)"`
	ResolutionNotes        *string    `gorm:"column:resolution_notes;type:text"`
	ResolutionChangesetURL *string    `gorm:"column:resolution_changeset_url;type:text"`

	CommitterEmail          *string `gorm:"column:committer_email;type:text;index"`
	CommitterName           *string `gorm:"column:committer_name;type:text"`
	CommitterGitHubUsername *string `gorm:"column:committer_github_username;type:text;index"`
	CommitterGitHubID       *int64  `gorm:"column:committer_github_id"`
	CommitterUserID         *uint64 `gorm:"column:committer_user_id;index"`

	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (Patch) TableName() string {
	return "patches"
}
