package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResumeRecord 一份上传简历与其所在索引的对应关系
type ResumeRecord struct {
	ID            string         `gorm:"type:char(36);primaryKey"`
	UserID        string         `gorm:"type:varchar(64);not null;index:idx_resume_records_user_created,priority:1"`
	IndexID       string         `gorm:"type:varchar(128);not null;index:idx_resume_records_index"`
	FileName      string         `gorm:"type:varchar(255);not null"`
	CandidateName string         `gorm:"type:varchar(255)"`
	ObjectKey     string         `gorm:"type:varchar(512)"` // 原始文件在对象存储中的键
	FileMD5       string         `gorm:"type:char(32)"`
	FileSize      int64          `gorm:"not null;default:0"`
	ChunkCount    int            `gorm:"not null;default:0"`
	Metadata      datatypes.JSON `gorm:"type:json"` // 技能、学历、工作年限
	CreatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_resume_records_user_created,priority:2"`
}

func (ResumeRecord) TableName() string {
	return "resume_records"
}

// RankingRun 一次排名请求及其完整结果
type RankingRun struct {
	RunID           string         `gorm:"type:char(36);primaryKey"`
	IndexID         string         `gorm:"type:varchar(128);not null;index:idx_ranking_runs_index"`
	JDHash          string         `gorm:"type:char(64);not null;index:idx_ranking_runs_jd_hash"`
	JobDescription  string         `gorm:"type:text;not null"`
	TotalCandidates int            `gorm:"not null;default:0"`
	BestCandidate   string         `gorm:"type:varchar(255)"`
	DriftDetected   bool           `gorm:"not null;default:false"`
	Result          datatypes.JSON `gorm:"type:json;not null"`
	DurationMS      int64          `gorm:"not null;default:0"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (RankingRun) TableName() string {
	return "ranking_runs"
}
