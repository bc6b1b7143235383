package model

import "time"

const (
	DefaultExamIcon        = "📝"
	DefaultTimeLimit       = 1800
	DefaultPointsCorrect   = 1.0
	DefaultPointsIncorrect = 0.0
	DefaultMaxAttempts     = 2

	// PassScore 及格线（满分 10 分）
	PassScore = 5.0
	MaxScore  = 10.0
)

// swagger:model Exam
type Exam struct {
	BaseModel
	Title           string     `gorm:"size:200;not null" json:"title"`
	Icon            string     `gorm:"size:32" json:"icon"`
	Description     string     `gorm:"type:text" json:"description"`
	TimeLimit       int        `gorm:"not null" json:"timeLimit"` // 秒
	PointsCorrect   float64    `gorm:"not null" json:"pointsCorrect"`
	PointsIncorrect float64    `gorm:"not null" json:"pointsIncorrect"`
	MaxAttempts     int        `gorm:"not null" json:"maxAttempts"`
	Deadline        *time.Time `json:"deadline"`
	IsActive        bool       `gorm:"not null;index" json:"isActive"`
	Shuffle         bool       `gorm:"column:shuffle_questions;not null" json:"shuffleQuestions"`
	CreatedBy       uint       `gorm:"index" json:"createdBy"`
}

func (Exam) TableName() string {
	return "exams"
}

// DeadlinePassed 截止时间仅在开始考试时强制校验
func (e *Exam) DeadlinePassed(now time.Time) bool {
	return e.Deadline != nil && now.After(*e.Deadline)
}
