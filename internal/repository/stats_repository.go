package repository

import (
	"context"
	"examhub_backend/internal/model"

	"gorm.io/gorm"
)

// StatsRepository 管理端与个人统计的聚合查询
type StatsRepository struct {
	DB *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{DB: db}
}

type CompletedSummary struct {
	Students       int64    `gorm:"column:students"`
	Attempts       int64    `gorm:"column:attempts"`
	AvgScore       *float64 `gorm:"column:avg_score"`
	Passed         int64    `gorm:"column:passed"`
	TotalCorrect   int64    `gorm:"column:total_correct"`
	TotalIncorrect int64    `gorm:"column:total_incorrect"`
	TotalTime      int64    `gorm:"column:total_time"`
}

func (r *StatsRepository) summaryQuery(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Select(`COUNT(DISTINCT user_id) AS students,
			COUNT(*) AS attempts,
			AVG(score) AS avg_score,
			COALESCE(SUM(CASE WHEN score >= ? THEN 1 ELSE 0 END), 0) AS passed,
			COALESCE(SUM(correct_count), 0) AS total_correct,
			COALESCE(SUM(incorrect_count), 0) AS total_incorrect,
			COALESCE(SUM(time_spent), 0) AS total_time`, model.PassScore).
		Where("status = ?", model.AttemptCompleted)
}

// CompletedSummary 所有已完成记录的汇总
func (r *StatsRepository) CompletedSummary(ctx context.Context) (CompletedSummary, error) {
	var s CompletedSummary
	err := r.summaryQuery(ctx).Scan(&s).Error
	return s, err
}

// UserSummary 单个用户已完成记录的汇总
func (r *StatsRepository) UserSummary(ctx context.Context, userID uint) (CompletedSummary, error) {
	var s CompletedSummary
	err := r.summaryQuery(ctx).Where("user_id = ?", userID).Scan(&s).Error
	return s, err
}

// CompletedScores 所有已完成记录的分数（用于分数段统计）
func (r *StatsRepository) CompletedScores(ctx context.Context) ([]float64, error) {
	var scores []float64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("status = ? AND score IS NOT NULL", model.AttemptCompleted).
		Pluck("score", &scores).Error
	return scores, err
}

type ExamPerformance struct {
	ID       uint     `gorm:"column:id" json:"id"`
	Title    string   `gorm:"column:title" json:"title"`
	Icon     string   `gorm:"column:icon" json:"icon"`
	Attempts int64    `gorm:"column:attempts" json:"attempts"`
	AvgScore *float64 `gorm:"column:avg_score" json:"avgScore"`
}

// ExamPerformance 启用中的考试按标题排序
func (r *StatsRepository) ExamPerformance(ctx context.Context) ([]ExamPerformance, error) {
	var rows []ExamPerformance
	err := r.DB.WithContext(ctx).Table("exams").
		Select("exams.id, exams.title, exams.icon, COUNT(exam_attempts.id) AS attempts, AVG(exam_attempts.score) AS avg_score").
		Joins("LEFT JOIN exam_attempts ON exam_attempts.exam_id = exams.id AND exam_attempts.status = ? AND exam_attempts.deleted_at IS NULL", model.AttemptCompleted).
		Where("exams.is_active = ? AND exams.deleted_at IS NULL", true).
		Group("exams.id, exams.title, exams.icon").
		Order("exams.title ASC").
		Scan(&rows).Error
	return rows, err
}

type RankingRow struct {
	UserID      uint    `gorm:"column:user_id"`
	Name        string  `gorm:"column:name"`
	Code        string  `gorm:"column:dni"`
	ExamCount   int64   `gorm:"column:exam_count"`
	AvgScore    float64 `gorm:"column:avg_score"`
	PassedCount int64   `gorm:"column:passed_count"`
}

// Ranking 仅统计学生，平均分降序，其次通过次数降序
func (r *StatsRepository) Ranking(ctx context.Context, limit int) ([]RankingRow, error) {
	var rows []RankingRow
	err := r.DB.WithContext(ctx).Table("users").
		Select(`users.id AS user_id, users.name, users.dni,
			COUNT(exam_attempts.id) AS exam_count,
			AVG(exam_attempts.score) AS avg_score,
			SUM(CASE WHEN exam_attempts.score >= ? THEN 1 ELSE 0 END) AS passed_count`, model.PassScore).
		Joins("JOIN exam_attempts ON exam_attempts.user_id = users.id AND exam_attempts.deleted_at IS NULL").
		Where("exam_attempts.status = ? AND users.role = ? AND users.deleted_at IS NULL", model.AttemptCompleted, model.Student).
		Group("users.id, users.name, users.dni").
		Order("avg_score DESC, passed_count DESC, users.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
