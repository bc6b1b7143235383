package model

import "time"

// Answer 每个 (attempt, question) 最多一条，写入为 upsert
type Answer struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID      uint      `gorm:"uniqueIndex:idx_answer_attempt_question;not null" json:"attemptId"`
	QuestionID     uint      `gorm:"uniqueIndex:idx_answer_attempt_question;not null" json:"questionId"`
	SelectedOption *int      `json:"selectedOption"`
	IsCorrect      *bool     `json:"isCorrect"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

func (Answer) TableName() string {
	return "answers"
}
