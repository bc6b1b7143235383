package model

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// swagger:model Attempt
// 同一 (user, exam) 同时最多只有一个 in_progress 记录，由查询保证而非唯一索引
type Attempt struct {
	BaseModel
	UserID          uint                      `gorm:"index:idx_attempt_user_exam;not null" json:"userId"`
	ExamID          uint                      `gorm:"index:idx_attempt_user_exam;not null" json:"examId"`
	StartedAt       time.Time                 `gorm:"not null" json:"startedAt"`
	FinishedAt      *time.Time                `json:"finishedAt"`
	Status          AttemptStatus             `gorm:"size:16;not null;default:'in_progress';index" json:"status"`
	Score           *float64                  `json:"score"`
	CorrectCount    int                       `gorm:"not null;default:0" json:"correct"`
	IncorrectCount  int                       `gorm:"not null;default:0" json:"incorrect"`
	UnansweredCount int                       `gorm:"not null;default:0" json:"unanswered"`
	TimeSpent       int                       `gorm:"not null;default:0" json:"timeSpent"`
	QuestionOrder   datatypes.JSONSlice[uint] `json:"-"`
	StudentNote     *string                   `gorm:"type:text" json:"studentNote"`
	// Version 每次写入答案或结算时自增，用于在事务内锁定记录
	Version int `gorm:"not null;default:0" json:"-"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Exam *Exam `gorm:"foreignKey:ExamID" json:"exam,omitempty"`
}

func (Attempt) TableName() string {
	return "exam_attempts"
}

func (a *Attempt) InProgress() bool {
	return a.Status == AttemptInProgress
}

func (a *Attempt) Passed() bool {
	return a.Status == AttemptCompleted && a.Score != nil && *a.Score >= PassScore
}
