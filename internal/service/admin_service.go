package service

import (
	"context"
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	// ResultsLimit 管理端结果列表最多返回条数
	ResultsLimit = 500
	// RankingLimit 排行榜人数
	RankingLimit = 50
)

// GradeBuckets 分数段，左闭右开，最后一段包含 10
var GradeBuckets = []string{"0-2", "2-4", "4-5", "5-6", "6-8", "8-10"}

// GradeBucket 返回分数所在的分数段
func GradeBucket(score float64) string {
	switch {
	case score < 2:
		return "0-2"
	case score < 4:
		return "2-4"
	case score < 5:
		return "4-5"
	case score < 6:
		return "5-6"
	case score < 8:
		return "6-8"
	default:
		return "8-10"
	}
}

// QuestionInput 创建/编辑考试时题目的唯一合法格式
type QuestionInput struct {
	Text          string   `json:"text" binding:"required"`
	Options       []string `json:"options" binding:"required,len=4,dive,required"`
	CorrectOption *int     `json:"correctOption" binding:"required,gte=0,lte=3"`
	Explanation   *string  `json:"explanation"`
}

type CreateExamInput struct {
	Title            string          `json:"title" binding:"required"`
	Icon             *string         `json:"icon"`
	Description      *string         `json:"description"`
	TimeLimit        *int            `json:"timeLimit" binding:"omitempty,gt=0"`
	PointsCorrect    *float64        `json:"pointsCorrect" binding:"omitempty,gte=0"`
	PointsIncorrect  *float64        `json:"pointsIncorrect" binding:"omitempty,gte=0"`
	MaxAttempts      *int            `json:"maxAttempts" binding:"omitempty,gt=0"`
	Deadline         *string         `json:"deadline"`
	ShuffleQuestions *bool           `json:"shuffleQuestions"`
	Questions        []QuestionInput `json:"questions" binding:"required,min=1,dive"`
}

// UpdateExamInput 为 nil 的字段保持原值；Deadline 为 "" 时清除截止时间；
// Questions 非 nil 时整体替换题目
type UpdateExamInput struct {
	Title            *string         `json:"title" binding:"omitempty,min=1"`
	Icon             *string         `json:"icon"`
	Description      *string         `json:"description"`
	TimeLimit        *int            `json:"timeLimit" binding:"omitempty,gt=0"`
	PointsCorrect    *float64        `json:"pointsCorrect" binding:"omitempty,gte=0"`
	PointsIncorrect  *float64        `json:"pointsIncorrect" binding:"omitempty,gte=0"`
	MaxAttempts      *int            `json:"maxAttempts" binding:"omitempty,gt=0"`
	Deadline         *string         `json:"deadline"`
	ShuffleQuestions *bool           `json:"shuffleQuestions"`
	IsActive         *bool           `json:"isActive"`
	Questions        []QuestionInput `json:"questions" binding:"omitempty,dive"`
}

type AdminStats struct {
	TotalStudents     int64                        `json:"totalStudents"`
	TotalExams        int64                        `json:"totalExams"`
	AvgScore          float64                      `json:"avgScore"`
	PassRate          int                          `json:"passRate"`
	GradeDistribution map[string]int64             `json:"gradeDistribution"`
	ExamPerformance   []repository.ExamPerformance `json:"examPerformance"`
}

type ResultRow struct {
	ID          uint       `json:"id"`
	UserID      uint       `json:"userId"`
	Name        string     `json:"name"`
	Code        string     `json:"dni"`
	ExamID      uint       `json:"examId"`
	ExamTitle   string     `json:"examTitle"`
	Icon        string     `json:"icon"`
	Score       float64    `json:"score"`
	Correct     int        `json:"correct"`
	Incorrect   int        `json:"incorrect"`
	Unanswered  int        `json:"unanswered"`
	Total       int        `json:"total"`
	TimeSpent   int        `json:"timeSpent"`
	FinishedAt  *time.Time `json:"finishedAt"`
	StudentNote *string    `json:"studentNote"`
}

type RankingEntry struct {
	Position    int     `json:"position"`
	UserID      uint    `json:"userId"`
	Name        string  `json:"name"`
	Code        string  `json:"dni"`
	ExamCount   int64   `json:"examCount"`
	AvgScore    float64 `json:"avgScore"`
	PassedCount int64   `json:"passedCount"`
}

type AdminExam struct {
	model.Exam
	QuestionCount int64 `json:"questionCount"`
	AttemptCount  int64 `json:"attemptCount"`
}

type AdminQuestion struct {
	ID            uint     `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	Explanation   *string  `json:"explanation"`
	Order         int      `json:"order"`
}

type AdminUser struct {
	ID        uint           `json:"id"`
	Code      string         `json:"dni"`
	Name      string         `json:"name"`
	Role      model.UserRole `json:"role"`
	Avatar    *string        `json:"avatar"`
	CreatedAt time.Time      `json:"createdAt"`
	ExamCount int64          `json:"examCount"`
	AvgScore  *float64       `json:"avgScore"`
}

type AdminService struct {
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.AttemptRepository
	StatsRepo   *repository.StatsRepository
	UserRepo    *repository.UserRepository
	ResultSvc   *ResultService
}

func NewAdminService(examRepo *repository.ExamRepository, attemptRepo *repository.AttemptRepository, statsRepo *repository.StatsRepository, userRepo *repository.UserRepository, results *ResultService) *AdminService {
	return &AdminService{
		ExamRepo:    examRepo,
		AttemptRepo: attemptRepo,
		StatsRepo:   statsRepo,
		UserRepo:    userRepo,
		ResultSvc:   results,
	}
}

func (s *AdminService) Stats(ctx context.Context) (*AdminStats, error) {
	sum, err := s.StatsRepo.CompletedSummary(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "completed summary")
	}
	scores, err := s.StatsRepo.CompletedScores(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "completed scores")
	}
	perf, err := s.StatsRepo.ExamPerformance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "exam performance")
	}

	dist := make(map[string]int64, len(GradeBuckets))
	for _, b := range GradeBuckets {
		dist[b] = 0
	}
	for _, score := range scores {
		dist[GradeBucket(score)]++
	}

	for i := range perf {
		if perf[i].AvgScore != nil {
			avg := util.Round1(*perf[i].AvgScore)
			perf[i].AvgScore = &avg
		}
	}

	stats := &AdminStats{
		TotalStudents:     sum.Students,
		TotalExams:        sum.Attempts,
		PassRate:          passRate(sum.Passed, sum.Attempts),
		GradeDistribution: dist,
		ExamPerformance:   perf,
	}
	if sum.AvgScore != nil {
		stats.AvgScore = util.Round1(*sum.AvgScore)
	}
	return stats, nil
}

// Results 最近完成的记录
func (s *AdminService) Results(ctx context.Context) ([]ResultRow, error) {
	return s.completedRows(ctx, ResultsLimit)
}

func (s *AdminService) completedRows(ctx context.Context, limit int) ([]ResultRow, error) {
	attempts, err := s.AttemptRepo.ListCompleted(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list completed attempts")
	}

	rows := make([]ResultRow, 0, len(attempts))
	for _, a := range attempts {
		row := ResultRow{
			ID:          a.ID,
			UserID:      a.UserID,
			ExamID:      a.ExamID,
			Correct:     a.CorrectCount,
			Incorrect:   a.IncorrectCount,
			Unanswered:  a.UnansweredCount,
			Total:       a.CorrectCount + a.IncorrectCount + a.UnansweredCount,
			TimeSpent:   a.TimeSpent,
			FinishedAt:  a.FinishedAt,
			StudentNote: a.StudentNote,
		}
		if a.Score != nil {
			row.Score = util.Round1(*a.Score)
		}
		if a.User != nil {
			row.Name = a.User.Name
			row.Code = a.User.Code
		}
		if a.Exam != nil {
			row.ExamTitle = a.Exam.Title
			row.Icon = a.Exam.Icon
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *AdminService) ResultDetail(ctx context.Context, attemptID uint) (*ReviewDetail, error) {
	return s.ResultSvc.AdminReviewDetail(ctx, attemptID)
}

func (s *AdminService) Ranking(ctx context.Context) ([]RankingEntry, error) {
	rows, err := s.StatsRepo.Ranking(ctx, RankingLimit)
	if err != nil {
		return nil, errors.Wrap(err, "ranking")
	}

	ranking := make([]RankingEntry, len(rows))
	for i, r := range rows {
		ranking[i] = RankingEntry{
			Position:    i + 1,
			UserID:      r.UserID,
			Name:        r.Name,
			Code:        r.Code,
			ExamCount:   r.ExamCount,
			AvgScore:    util.Round1(r.AvgScore),
			PassedCount: r.PassedCount,
		}
	}
	return ranking, nil
}

func (s *AdminService) ListExams(ctx context.Context) ([]AdminExam, error) {
	exams, err := s.ExamRepo.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list exams")
	}
	questionCounts, err := s.ExamRepo.QuestionCounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count questions")
	}
	attemptCounts, err := s.AttemptRepo.CompletedCountsByExam(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count attempts")
	}

	result := make([]AdminExam, len(exams))
	for i, e := range exams {
		result[i] = AdminExam{
			Exam:          e,
			QuestionCount: questionCounts[e.ID],
			AttemptCount:  attemptCounts[e.ID],
		}
	}
	return result, nil
}

func (s *AdminService) Questions(ctx context.Context, examID uint) ([]AdminQuestion, error) {
	if _, err := s.findExam(ctx, examID); err != nil {
		return nil, err
	}
	questions, err := s.ExamRepo.Questions(ctx, examID)
	if err != nil {
		return nil, errors.Wrap(err, "load questions")
	}

	result := make([]AdminQuestion, len(questions))
	for i, q := range questions {
		result[i] = AdminQuestion{
			ID:            q.ID,
			Text:          q.Text,
			Options:       q.Options(),
			CorrectOption: q.CorrectOption,
			Explanation:   q.Explanation,
			Order:         q.OrderNum,
		}
	}
	return result, nil
}

func (s *AdminService) Users(ctx context.Context) ([]AdminUser, error) {
	rows, err := s.UserRepo.ListWithStats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}

	users := make([]AdminUser, len(rows))
	for i, r := range rows {
		users[i] = AdminUser{
			ID:        r.ID,
			Code:      r.Code,
			Name:      r.Name,
			Role:      r.Role,
			Avatar:    r.Avatar,
			CreatedAt: r.CreatedAt,
			ExamCount: r.ExamCount,
		}
		if r.AvgScore != nil {
			avg := util.Round1(*r.AvgScore)
			users[i].AvgScore = &avg
		}
	}
	return users, nil
}

func (s *AdminService) CreateExam(ctx context.Context, creatorID uint, input *CreateExamInput) (*model.Exam, error) {
	if err := util.ValidateStruct(input); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, util.NewValidationError("title is required")
	}
	questions, err := buildQuestions(input.Questions)
	if err != nil {
		return nil, err
	}

	exam := &model.Exam{
		Title:           title,
		Icon:            model.DefaultExamIcon,
		TimeLimit:       model.DefaultTimeLimit,
		PointsCorrect:   model.DefaultPointsCorrect,
		PointsIncorrect: model.DefaultPointsIncorrect,
		MaxAttempts:     model.DefaultMaxAttempts,
		IsActive:        true,
		CreatedBy:       creatorID,
	}
	if input.Icon != nil && strings.TrimSpace(*input.Icon) != "" {
		exam.Icon = strings.TrimSpace(*input.Icon)
	}
	if input.Description != nil {
		exam.Description = *input.Description
	}
	if input.TimeLimit != nil {
		exam.TimeLimit = *input.TimeLimit
	}
	if input.PointsCorrect != nil {
		exam.PointsCorrect = *input.PointsCorrect
	}
	if input.PointsIncorrect != nil {
		exam.PointsIncorrect = *input.PointsIncorrect
	}
	if input.MaxAttempts != nil {
		exam.MaxAttempts = *input.MaxAttempts
	}
	if input.ShuffleQuestions != nil {
		exam.Shuffle = *input.ShuffleQuestions
	}
	if input.Deadline != nil {
		if exam.Deadline, err = ParseDeadline(*input.Deadline); err != nil {
			return nil, err
		}
	}

	if err := s.ExamRepo.Create(ctx, exam, questions); err != nil {
		return nil, errors.Wrap(err, "create exam")
	}
	return exam, nil
}

func (s *AdminService) UpdateExam(ctx context.Context, examID uint, input *UpdateExamInput) (*model.Exam, error) {
	if err := util.ValidateStruct(input); err != nil {
		return nil, err
	}
	exam, err := s.findExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, util.NewValidationError("title must not be empty")
		}
		exam.Title = title
	}
	if input.Icon != nil {
		exam.Icon = *input.Icon
	}
	if input.Description != nil {
		exam.Description = *input.Description
	}
	if input.TimeLimit != nil {
		exam.TimeLimit = *input.TimeLimit
	}
	if input.PointsCorrect != nil {
		exam.PointsCorrect = *input.PointsCorrect
	}
	if input.PointsIncorrect != nil {
		exam.PointsIncorrect = *input.PointsIncorrect
	}
	if input.MaxAttempts != nil {
		exam.MaxAttempts = *input.MaxAttempts
	}
	if input.ShuffleQuestions != nil {
		exam.Shuffle = *input.ShuffleQuestions
	}
	if input.IsActive != nil {
		exam.IsActive = *input.IsActive
	}
	if input.Deadline != nil {
		if exam.Deadline, err = ParseDeadline(*input.Deadline); err != nil {
			return nil, err
		}
	}

	var questions []model.Question
	if input.Questions != nil {
		if len(input.Questions) == 0 {
			return nil, util.NewValidationError("questions must contain at least one question")
		}
		if questions, err = buildQuestions(input.Questions); err != nil {
			return nil, err
		}
	}

	if err := s.ExamRepo.Update(ctx, exam, questions); err != nil {
		return nil, errors.Wrap(err, "update exam")
	}
	return exam, nil
}

// DeleteExam 有作答记录时只停用，返回 true；否则连同题目物理删除
func (s *AdminService) DeleteExam(ctx context.Context, examID uint) (deactivated bool, err error) {
	if _, err := s.findExam(ctx, examID); err != nil {
		return false, err
	}

	count, err := s.AttemptRepo.CountByExam(ctx, examID)
	if err != nil {
		return false, errors.Wrap(err, "count attempts")
	}
	if count > 0 {
		if err := s.ExamRepo.Deactivate(ctx, examID); err != nil {
			return false, errors.Wrap(err, "deactivate exam")
		}
		return true, nil
	}

	if err := s.ExamRepo.HardDelete(ctx, examID); err != nil {
		return false, errors.Wrap(err, "delete exam")
	}
	return false, nil
}

func (s *AdminService) findExam(ctx context.Context, examID uint) (*model.Exam, error) {
	exam, err := s.ExamRepo.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, errors.Wrap(err, "find exam")
	}
	return exam, nil
}

func buildQuestions(inputs []QuestionInput) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(inputs))
	for i, in := range inputs {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return nil, util.NewValidationError("question text is required")
		}
		if len(in.Options) != model.OptionCount {
			return nil, util.NewValidationError("each question must have exactly 4 options")
		}
		if in.CorrectOption == nil || *in.CorrectOption < 0 || *in.CorrectOption >= model.OptionCount {
			return nil, util.NewValidationError("correctOption must be between 0 and 3")
		}

		q := model.Question{
			Text:          text,
			CorrectOption: *in.CorrectOption,
			OrderNum:      i,
		}
		q.SetOptions(in.Options)
		if in.Explanation != nil && strings.TrimSpace(*in.Explanation) != "" {
			explanation := strings.TrimSpace(*in.Explanation)
			q.Explanation = &explanation
		}
		questions = append(questions, q)
	}
	return questions, nil
}

var deadlineLayouts = []string{time.RFC3339, "2006-01-02T15:04", util.TimeFormat}

// ParseDeadline "" 表示无截止时间；仅日期时截止到当天 23:59:59 (UTC)
func ParseDeadline(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if d, err := time.Parse(util.DateFormat, value); err == nil {
		end := d.Add(24*time.Hour - time.Second)
		return &end, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, util.NewValidationError("deadline must be RFC3339 or YYYY-MM-DD")
}
