package repository

import (
	"context"
	"examhub_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByCode code 需已规范化（大写）
func (r *UserRepository) FindByCode(ctx context.Context, code string) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).Where("dni = ?", code).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id uint, avatar string) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("avatar", avatar).Error
}

// UserWithStats 管理端用户列表
type UserWithStats struct {
	model.User
	ExamCount int64    `gorm:"column:exam_count"`
	AvgScore  *float64 `gorm:"column:avg_score"`
}

func (r *UserRepository) ListWithStats(ctx context.Context) ([]UserWithStats, error) {
	var rows []UserWithStats
	err := r.DB.WithContext(ctx).Table("users").
		Select(`users.*, COUNT(exam_attempts.id) AS exam_count,
			AVG(CASE WHEN exam_attempts.status = ? THEN exam_attempts.score END) AS avg_score`, model.AttemptCompleted).
		Joins("LEFT JOIN exam_attempts ON exam_attempts.user_id = users.id AND exam_attempts.deleted_at IS NULL").
		Where("users.deleted_at IS NULL").
		Group("users.id").
		Order("users.created_at DESC, users.id DESC").
		Scan(&rows).Error
	return rows, err
}
