package repository

import (
	"context"
	"errors"
	"examhub_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

// ErrAttemptNotInProgress 条件更新未命中任何 in_progress 记录
var ErrAttemptNotInProgress = errors.New("attempt is not in progress")

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id uint) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.WithContext(ctx).Preload("Exam").Preload("User").First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FindOwned 只返回属于该用户的记录
func (r *AttemptRepository) FindOwned(ctx context.Context, id, userID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).Preload("Exam").Preload("User").
		Where("user_id = ?", userID).
		First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindInProgress 没有进行中的记录时返回 nil, nil
func (r *AttemptRepository) FindInProgress(ctx context.Context, userID, examID uint) (*model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND exam_id = ? AND status = ?", userID, examID, model.AttemptInProgress).
		Order("id ASC").
		Limit(1).
		Find(&attempts).Error
	if err != nil || len(attempts) == 0 {
		return nil, err
	}
	return &attempts[0], nil
}

// ExamTally 某用户在某考试上的已完成记录汇总
type ExamTally struct {
	ExamID    uint     `gorm:"column:exam_id"`
	Completed int64    `gorm:"column:completed"`
	Passed    int64    `gorm:"column:passed"`
	BestScore *float64 `gorm:"column:best_score"`
}

func (t ExamTally) HasPassed() bool {
	return t.Passed > 0
}

func (r *AttemptRepository) tallyQuery(ctx context.Context, userID uint) *gorm.DB {
	return r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Select(`exam_id, COUNT(*) AS completed,
			SUM(CASE WHEN score >= ? THEN 1 ELSE 0 END) AS passed,
			MAX(score) AS best_score`, model.PassScore).
		Where("user_id = ? AND status = ?", userID, model.AttemptCompleted).
		Group("exam_id")
}

// Tally 无记录时返回零值
func (r *AttemptRepository) Tally(ctx context.Context, userID, examID uint) (ExamTally, error) {
	var rows []ExamTally
	err := r.tallyQuery(ctx, userID).Where("exam_id = ?", examID).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return ExamTally{ExamID: examID}, err
	}
	return rows[0], nil
}

// TalliesByExam 用户所有考试的汇总，key 为 exam id
func (r *AttemptRepository) TalliesByExam(ctx context.Context, userID uint) (map[uint]ExamTally, error) {
	var rows []ExamTally
	if err := r.tallyQuery(ctx, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	tallies := make(map[uint]ExamTally, len(rows))
	for _, t := range rows {
		tallies[t.ExamID] = t
	}
	return tallies, nil
}

// CountByExam 任意状态的记录数
func (r *AttemptRepository) CountByExam(ctx context.Context, examID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Unscoped().Model(&model.Attempt{}).Where("exam_id = ?", examID).Count(&count).Error
	return count, err
}

// CompletedCountsByExam 每个考试的已完成次数
func (r *AttemptRepository) CompletedCountsByExam(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		ExamID uint
		Count  int64
	}
	var rows []row
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Select("exam_id, COUNT(*) AS count").
		Where("status = ?", model.AttemptCompleted).
		Group("exam_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, c := range rows {
		counts[c.ExamID] = c.Count
	}
	return counts, nil
}

// ListCompletedByUser 按完成时间倒序
func (r *AttemptRepository) ListCompletedByUser(ctx context.Context, userID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).Preload("Exam").
		Where("user_id = ? AND status = ?", userID, model.AttemptCompleted).
		Order("finished_at DESC, id DESC").
		Find(&attempts).Error
	return attempts, err
}

// ListCompleted limit <= 0 表示不限制
func (r *AttemptRepository) ListCompleted(ctx context.Context, limit int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	query := r.DB.WithContext(ctx).Preload("Exam").Preload("User").
		Where("status = ?", model.AttemptCompleted).
		Order("finished_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&attempts).Error
	return attempts, err
}

// ListInProgress 供超时清理任务使用
func (r *AttemptRepository) ListInProgress(ctx context.Context) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).Preload("Exam").
		Where("status = ?", model.AttemptInProgress).
		Order("started_at ASC").
		Find(&attempts).Error
	return attempts, err
}

// GradedAnswer 单题判分结果
type GradedAnswer struct {
	QuestionID uint
	Correct    bool
}

// Completion 结束考试时写入的字段
type Completion struct {
	FinishedAt    time.Time
	Score         float64
	Correct       int
	Incorrect     int
	Unanswered    int
	TimeSpent     int
	StudentNote   *string
	GradedAnswers []GradedAnswer
}

// claimInProgress 自增 version 以持有记录的写锁；记录不是 in_progress 时返回 ErrAttemptNotInProgress。
// 写答案与结算都先调用它，两者因此在同一行上串行执行。
func claimInProgress(tx *gorm.DB, attemptID uint) error {
	res := tx.Model(&model.Attempt{}).
		Where("id = ? AND status = ?", attemptID, model.AttemptInProgress).
		UpdateColumn("version", gorm.Expr("version + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAttemptNotInProgress
	}
	return nil
}

// Complete 锁定记录后在同一事务内读取答案、由 grade 判分，再把记录从 in_progress 转为 completed。
// 状态不是 in_progress 时返回 ErrAttemptNotInProgress 并回滚整个事务。
func (r *AttemptRepository) Complete(ctx context.Context, attemptID uint, grade func(answers []model.Answer) *Completion) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimInProgress(tx, attemptID); err != nil {
			return err
		}

		var answers []model.Answer
		if err := tx.Where("attempt_id = ?", attemptID).Order("id ASC").Find(&answers).Error; err != nil {
			return err
		}
		c := grade(answers)

		for _, g := range c.GradedAnswers {
			err := tx.Model(&model.Answer{}).
				Where("attempt_id = ? AND question_id = ?", attemptID, g.QuestionID).
				Update("is_correct", g.Correct).Error
			if err != nil {
				return err
			}
		}

		res := tx.Model(&model.Attempt{}).
			Where("id = ? AND status = ?", attemptID, model.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":           model.AttemptCompleted,
				"finished_at":      c.FinishedAt,
				"score":            c.Score,
				"correct_count":    c.Correct,
				"incorrect_count":  c.Incorrect,
				"unanswered_count": c.Unanswered,
				"time_spent":       c.TimeSpent,
				"student_note":     c.StudentNote,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAttemptNotInProgress
		}
		return nil
	})
}
