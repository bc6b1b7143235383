package service

import (
	"context"
	"examhub_backend/internal/repository"
	"time"

	"github.com/pkg/errors"
)

// ExamSummary 学生视角的考试列表项
type ExamSummary struct {
	ID              uint       `json:"id"`
	Title           string     `json:"title"`
	Icon            string     `json:"icon"`
	Description     string     `json:"description"`
	TimeLimit       int        `json:"timeLimit"`
	MaxAttempts     int        `json:"maxAttempts"`
	Deadline        *time.Time `json:"deadline"`
	PointsCorrect   float64    `json:"pointsCorrect"`
	PointsIncorrect float64    `json:"pointsIncorrect"`
	QuestionCount   int64      `json:"questionCount"`
	Attempts        int64      `json:"attempts"`
	BestScore       *float64   `json:"bestScore"`
	Passed          bool       `json:"passed"`
	CanRetake       bool       `json:"canRetake"`
	CanStart        bool       `json:"canStart"`
}

type CatalogService struct {
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.AttemptRepository
}

func NewCatalogService(examRepo *repository.ExamRepository, attemptRepo *repository.AttemptRepository) *CatalogService {
	return &CatalogService{ExamRepo: examRepo, AttemptRepo: attemptRepo}
}

// ListAvailable 启用中的考试（最新优先）及该用户的作答状态；截止时间仅用于展示
func (s *CatalogService) ListAvailable(ctx context.Context, userID uint) ([]ExamSummary, error) {
	exams, err := s.ExamRepo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active exams")
	}
	counts, err := s.ExamRepo.QuestionCounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count questions")
	}
	tallies, err := s.AttemptRepo.TalliesByExam(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "tally attempts")
	}

	summaries := make([]ExamSummary, 0, len(exams))
	for _, e := range exams {
		t := tallies[e.ID]
		passed := t.HasPassed()
		canRetake := !passed && t.Completed < int64(e.MaxAttempts)

		var best *float64
		if t.Completed > 0 && t.BestScore != nil {
			b := *t.BestScore
			best = &b
		}

		summaries = append(summaries, ExamSummary{
			ID:              e.ID,
			Title:           e.Title,
			Icon:            e.Icon,
			Description:     e.Description,
			TimeLimit:       e.TimeLimit,
			MaxAttempts:     e.MaxAttempts,
			Deadline:        e.Deadline,
			PointsCorrect:   e.PointsCorrect,
			PointsIncorrect: e.PointsIncorrect,
			QuestionCount:   counts[e.ID],
			Attempts:        t.Completed,
			BestScore:       best,
			Passed:          passed,
			CanRetake:       canRetake,
			CanStart:        t.Completed == 0 || canRetake,
		})
	}
	return summaries, nil
}
