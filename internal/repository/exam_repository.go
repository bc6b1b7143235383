package repository

import (
	"context"
	"examhub_backend/internal/model"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) FindByID(ctx context.Context, id uint) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.WithContext(ctx).First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) FindActiveByID(ctx context.Context, id uint) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.WithContext(ctx).Where("is_active = ?", true).First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

// ListActive 按创建时间倒序
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.WithContext(ctx).Where("is_active = ?", true).
		Order("created_at DESC, id DESC").
		Find(&exams).Error
	return exams, err
}

func (r *ExamRepository) ListAll(ctx context.Context) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.DB.WithContext(ctx).Order("created_at DESC, id DESC").Find(&exams).Error
	return exams, err
}

// Questions 按 order_num, id 升序
func (r *ExamRepository) Questions(ctx context.Context, examID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).Where("exam_id = ?", examID).
		Order("order_num ASC, id ASC").
		Find(&questions).Error
	return questions, err
}

func (r *ExamRepository) FindQuestion(ctx context.Context, examID, questionID uint) (*model.Question, error) {
	var q model.Question
	if err := r.DB.WithContext(ctx).Where("exam_id = ?", examID).First(&q, questionID).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// QuestionCounts 每个考试的题目数量
func (r *ExamRepository) QuestionCounts(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		ExamID uint
		Count  int64
	}
	var rows []row
	err := r.DB.WithContext(ctx).Model(&model.Question{}).
		Select("exam_id, COUNT(*) AS count").
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

// Create 考试与题目在同一事务中写入
func (r *ExamRepository) Create(ctx context.Context, exam *model.Exam, questions []model.Question) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exam).Error; err != nil {
			return err
		}
		return createQuestions(tx, exam.ID, questions)
	})
}

// Update 保存考试字段；questions 非 nil 时整体替换题目
func (r *ExamRepository) Update(ctx context.Context, exam *model.Exam, questions []model.Question) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(exam).Error; err != nil {
			return err
		}
		if questions == nil {
			return nil
		}
		if err := tx.Unscoped().Where("exam_id = ?", exam.ID).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return createQuestions(tx, exam.ID, questions)
	})
}

func createQuestions(tx *gorm.DB, examID uint, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	for i := range questions {
		questions[i].ID = 0
		questions[i].ExamID = examID
		questions[i].OrderNum = i
	}
	return tx.Create(&questions).Error
}

func (r *ExamRepository) Deactivate(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Model(&model.Exam{}).Where("id = ?", id).Update("is_active", false).Error
}

// HardDelete 物理删除考试及其题目
func (r *ExamRepository) HardDelete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("exam_id = ?", id).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.Exam{}, id).Error
	})
}
