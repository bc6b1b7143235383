package repository

import (
	"context"
	"examhub_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnswerRepository struct {
	DB *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) *AnswerRepository {
	return &AnswerRepository{DB: db}
}

// Upsert 同一 (attempt, question) 只保留最后一次选择。
// 记录已结算时返回 ErrAttemptNotInProgress，不写入任何答案。
func (r *AnswerRepository) Upsert(ctx context.Context, answer *model.Answer) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimInProgress(tx, answer.AttemptID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"selected_option", "answered_at"}),
		}).Create(answer).Error
	})
}

func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uint) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("id ASC").Find(&answers).Error
	return answers, err
}
