package service

import (
	"context"
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// certificateNamespace 证书编号的 UUIDv5 命名空间
var certificateNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://examhub/certificates"))

const certificateIDLength = 12

// AttemptSummary 历史记录中的一条已完成记录
type AttemptSummary struct {
	ID             uint       `json:"id"`
	ExamID         uint       `json:"examId"`
	ExamTitle      string     `json:"examTitle"`
	Icon           string     `json:"icon"`
	MaxAttempts    int        `json:"maxAttempts"`
	Score          float64    `json:"score"`
	Correct        int        `json:"correct"`
	Incorrect      int        `json:"incorrect"`
	Unanswered     int        `json:"unanswered"`
	Total          int        `json:"total"`
	TimeSpent      int        `json:"timeSpent"`
	FinishedAt     *time.Time `json:"finishedAt"`
	Passed         bool       `json:"passed"`
	CanViewAnswers bool       `json:"canViewAnswers"`
}

// AttemptDetail 结果页的考试记录信息
type AttemptDetail struct {
	ID          uint                `json:"id"`
	ExamID      uint                `json:"examId"`
	ExamTitle   string              `json:"examTitle"`
	Icon        string              `json:"icon"`
	Status      model.AttemptStatus `json:"status"`
	Score       *float64            `json:"score"`
	Correct     int                 `json:"correct"`
	Incorrect   int                 `json:"incorrect"`
	Unanswered  int                 `json:"unanswered"`
	Total       int                 `json:"total"`
	TimeSpent   int                 `json:"timeSpent"`
	StartedAt   time.Time           `json:"startedAt"`
	FinishedAt  *time.Time          `json:"finishedAt"`
	Passed      bool                `json:"passed"`
	StudentNote *string             `json:"studentNote,omitempty"`
	UserName    string              `json:"userName,omitempty"`
	UserCode    string              `json:"userDni,omitempty"`
}

// ReviewItem 逐题回顾
type ReviewItem struct {
	Number         int      `json:"number"`
	QuestionID     uint     `json:"questionId"`
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	CorrectOption  int      `json:"correctOption"`
	SelectedOption *int     `json:"selectedOption"`
	IsCorrect      bool     `json:"isCorrect"`
	Explanation    *string  `json:"explanation"`
}

type ReviewDetail struct {
	Attempt        AttemptDetail `json:"attempt"`
	CanViewAnswers bool          `json:"canViewAnswers"`
	AttemptsUsed   int64         `json:"attemptsUsed"`
	MaxAttempts    int           `json:"maxAttempts"`
	// 未满足查看条件时为空
	Review []ReviewItem `json:"review"`
}

type Certificate struct {
	ID        string    `json:"id"`
	UserName  string    `json:"userName"`
	Code      string    `json:"dni"`
	ExamTitle string    `json:"examTitle"`
	Score     float64   `json:"score"`
	Date      time.Time `json:"date"`
}

type PersonalStats struct {
	TotalExams     int64   `json:"totalExams"`
	AvgScore       float64 `json:"avgScore"`
	PassedExams    int64   `json:"passedExams"`
	PassRate       int     `json:"passRate"`
	TotalCorrect   int64   `json:"totalCorrect"`
	TotalIncorrect int64   `json:"totalIncorrect"`
	TotalTime      int64   `json:"totalTime"`
}

type ResultService struct {
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.AttemptRepository
	AnswerRepo  *repository.AnswerRepository
	StatsRepo   *repository.StatsRepository
}

func NewResultService(examRepo *repository.ExamRepository, attemptRepo *repository.AttemptRepository, answerRepo *repository.AnswerRepository, statsRepo *repository.StatsRepository) *ResultService {
	return &ResultService{
		ExamRepo:    examRepo,
		AttemptRepo: attemptRepo,
		AnswerRepo:  answerRepo,
		StatsRepo:   statsRepo,
	}
}

// History 已完成记录，按完成时间倒序
func (s *ResultService) History(ctx context.Context, userID uint) ([]AttemptSummary, error) {
	attempts, err := s.AttemptRepo.ListCompletedByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	tallies, err := s.AttemptRepo.TalliesByExam(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "tally attempts")
	}

	results := make([]AttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		summary := AttemptSummary{
			ID:         a.ID,
			ExamID:     a.ExamID,
			Correct:    a.CorrectCount,
			Incorrect:  a.IncorrectCount,
			Unanswered: a.UnansweredCount,
			Total:      a.CorrectCount + a.IncorrectCount + a.UnansweredCount,
			TimeSpent:  a.TimeSpent,
			FinishedAt: a.FinishedAt,
			Passed:     a.Passed(),
		}
		if a.Score != nil {
			summary.Score = util.Round1(*a.Score)
		}
		if a.Exam != nil {
			summary.ExamTitle = a.Exam.Title
			summary.Icon = a.Exam.Icon
			summary.MaxAttempts = a.Exam.MaxAttempts
			summary.CanViewAnswers = CanViewAnswers(tallies[a.ExamID], a.Exam.MaxAttempts)
		}
		results = append(results, summary)
	}
	return results, nil
}

// ReviewDetail 学生查看自己的某次结果；逐题回顾受答案查看规则限制
func (s *ResultService) ReviewDetail(ctx context.Context, userID, attemptID uint) (*ReviewDetail, error) {
	attempt, err := s.AttemptRepo.FindOwned(ctx, attemptID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, errors.Wrap(err, "find attempt")
	}
	if attempt.InProgress() {
		return nil, util.ErrAttemptNotFinished
	}
	if attempt.Exam == nil {
		return nil, util.ErrExamNotFound
	}

	tally, err := s.AttemptRepo.Tally(ctx, userID, attempt.ExamID)
	if err != nil {
		return nil, errors.Wrap(err, "tally attempts")
	}

	detail := &ReviewDetail{
		Attempt:        attemptDetail(attempt),
		CanViewAnswers: CanViewAnswers(tally, attempt.Exam.MaxAttempts),
		AttemptsUsed:   tally.Completed,
		MaxAttempts:    attempt.Exam.MaxAttempts,
	}
	if detail.CanViewAnswers {
		if detail.Review, err = s.review(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// AdminReviewDetail 管理员查看任意记录，不受查看规则限制
func (s *ResultService) AdminReviewDetail(ctx context.Context, attemptID uint) (*ReviewDetail, error) {
	attempt, err := s.AttemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, errors.Wrap(err, "find attempt")
	}
	if attempt.Exam == nil {
		return nil, util.ErrExamNotFound
	}

	tally, err := s.AttemptRepo.Tally(ctx, attempt.UserID, attempt.ExamID)
	if err != nil {
		return nil, errors.Wrap(err, "tally attempts")
	}

	detail := &ReviewDetail{
		Attempt:        attemptDetail(attempt),
		CanViewAnswers: true,
		AttemptsUsed:   tally.Completed,
		MaxAttempts:    attempt.Exam.MaxAttempts,
	}
	if attempt.User != nil {
		detail.Attempt.UserName = attempt.User.Name
		detail.Attempt.UserCode = attempt.User.Code
	}
	detail.Attempt.StudentNote = attempt.StudentNote
	if detail.Review, err = s.review(ctx, attempt); err != nil {
		return nil, err
	}
	return detail, nil
}

// review 使用考试当前的题目内容
func (s *ResultService) review(ctx context.Context, attempt *model.Attempt) ([]ReviewItem, error) {
	questions, err := s.ExamRepo.Questions(ctx, attempt.ExamID)
	if err != nil {
		return nil, errors.Wrap(err, "load questions")
	}
	answers, err := s.AnswerRepo.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load answers")
	}

	byQuestion := make(map[uint]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	items := make([]ReviewItem, 0, len(questions))
	for i, q := range questions {
		item := ReviewItem{
			Number:        i + 1,
			QuestionID:    q.ID,
			Text:          q.Text,
			Options:       q.Options(),
			CorrectOption: q.CorrectOption,
			Explanation:   q.Explanation,
		}
		if a, ok := byQuestion[q.ID]; ok && a.SelectedOption != nil {
			item.SelectedOption = a.SelectedOption
			if a.IsCorrect != nil {
				item.IsCorrect = *a.IsCorrect
			} else {
				item.IsCorrect = *a.SelectedOption == q.CorrectOption
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Certificate 仅对本人已通过的记录签发，编号由 (dni, 完成时间, 记录 id) 确定性生成
func (s *ResultService) Certificate(ctx context.Context, userID, attemptID uint) (*Certificate, error) {
	attempt, err := s.AttemptRepo.FindOwned(ctx, attemptID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, errors.Wrap(err, "find attempt")
	}
	if attempt.Status != model.AttemptCompleted || attempt.FinishedAt == nil || attempt.User == nil || attempt.Exam == nil {
		return nil, util.ErrAttemptNotFound
	}
	if !attempt.Passed() {
		return nil, util.ErrNotPassed
	}

	return &Certificate{
		ID:        CertificateID(attempt.User.Code, *attempt.FinishedAt, attempt.ID),
		UserName:  attempt.User.Name,
		Code:      attempt.User.Code,
		ExamTitle: attempt.Exam.Title,
		Score:     util.Round1(*attempt.Score),
		Date:      *attempt.FinishedAt,
	}, nil
}

// CertificateID UUIDv5 的前 12 位十六进制（大写）
func CertificateID(code string, finishedAt time.Time, attemptID uint) string {
	name := fmt.Sprintf("%s|%d|%d", code, finishedAt.Unix(), attemptID)
	id := uuid.NewSHA1(certificateNamespace, []byte(name))
	hex := strings.ReplaceAll(id.String(), "-", "")
	return strings.ToUpper(hex[:certificateIDLength])
}

func (s *ResultService) PersonalStats(ctx context.Context, userID uint) (*PersonalStats, error) {
	sum, err := s.StatsRepo.UserSummary(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "user summary")
	}

	stats := &PersonalStats{
		TotalExams:     sum.Attempts,
		PassedExams:    sum.Passed,
		TotalCorrect:   sum.TotalCorrect,
		TotalIncorrect: sum.TotalIncorrect,
		TotalTime:      sum.TotalTime,
	}
	if sum.AvgScore != nil {
		stats.AvgScore = util.Round1(*sum.AvgScore)
	}
	stats.PassRate = passRate(sum.Passed, sum.Attempts)
	return stats, nil
}

// passRate 百分比，取整
func passRate(passed, total int64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(passed) / float64(total) * 100))
}

func attemptDetail(a *model.Attempt) AttemptDetail {
	d := AttemptDetail{
		ID:         a.ID,
		ExamID:     a.ExamID,
		Status:     a.Status,
		Correct:    a.CorrectCount,
		Incorrect:  a.IncorrectCount,
		Unanswered: a.UnansweredCount,
		Total:      a.CorrectCount + a.IncorrectCount + a.UnansweredCount,
		TimeSpent:  a.TimeSpent,
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
		Passed:     a.Passed(),
	}
	if a.Score != nil {
		score := util.Round1(*a.Score)
		d.Score = &score
	}
	if a.Exam != nil {
		d.ExamTitle = a.Exam.Title
		d.Icon = a.Exam.Icon
	}
	return d
}
